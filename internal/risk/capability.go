// internal/risk/capability.go
package risk

import "github.com/opsforge/pulse/internal/metrics"

// Per-category risk capabilities. A domain type opts into assessment by
// implementing whichever of these it can answer; the scorer treats missing
// capabilities as zero risk. Composition over shared mutable state: there is
// no base type to embed, only interfaces to satisfy.
type (
	FeatureRisky interface {
		FeatureRisk() float64
	}
	DependencyRisky interface {
		DependencyRisk() float64
	}
	ModelRisky interface {
		ModelRisk() float64
	}
	EnvironmentalRisky interface {
		EnvironmentalRisk() float64
	}
)

// Assessable is the full capability set, for types that answer every
// category.
type Assessable interface {
	FeatureRisky
	DependencyRisky
	ModelRisky
	EnvironmentalRisky
}

// SnapshotSubject adapts a metric snapshot into an Assessable: factor
// gauges recorded under risk_factor.* become category values, and the
// environmental reading is floored by observed process panics.
type SnapshotSubject struct {
	Snapshot *metrics.MetricSnapshot
}

func (s SnapshotSubject) FeatureRisk() float64 {
	return s.Snapshot.Risk.Factors[CategoryFeature]
}

func (s SnapshotSubject) DependencyRisk() float64 {
	return s.Snapshot.Risk.Factors[CategoryDependency]
}

func (s SnapshotSubject) ModelRisk() float64 {
	return s.Snapshot.Risk.Factors[CategoryModel]
}

func (s SnapshotSubject) EnvironmentalRisk() float64 {
	v := s.Snapshot.Risk.Factors[CategoryEnvironmental]
	if s.Snapshot.Risk.PanicCount > 0 && v < bandHigh {
		return bandHigh
	}
	return v
}

var _ Assessable = SnapshotSubject{}

// FactorsFrom reads the raw factor gauges out of a snapshot.
func FactorsFrom(snap *metrics.MetricSnapshot) Factors {
	out := make(Factors, len(snap.Risk.Factors))
	for name, v := range snap.Risk.Factors {
		out[name] = v
	}
	return out
}
