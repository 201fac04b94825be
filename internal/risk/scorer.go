// internal/risk/scorer.go
package risk

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/opsforge/pulse/internal/config"
)

// Risk categories. Output that iterates categories always follows
// categoryOrder so results are stable across runs.
const (
	CategoryFeature       = "feature"
	CategoryDependency    = "dependency"
	CategoryModel         = "model"
	CategoryEnvironmental = "environmental"
)

var categoryOrder = []string{
	CategoryFeature,
	CategoryDependency,
	CategoryModel,
	CategoryEnvironmental,
}

// Category bands, applied to clamped per-category values. The overall level
// bands below reuse the same boundaries for the weighted score.
const (
	bandHigh     = 0.7
	bandCritical = 0.9
	bandMedium   = 0.3
)

// Level is the discrete band of an overall score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Factors maps a category name to its raw risk value. Inputs are unbounded;
// the scorer clamps each to [0,1] before weighting.
type Factors map[string]float64

// Assessment is the scorer's output. It is a value snapshot: recompute
// rather than hold on to one across mitigation changes.
type Assessment struct {
	Score       float64  `json:"score"`
	Level       Level    `json:"level"`
	Categories  Factors  `json:"categories"`
	Mitigations []string `json:"mitigations"`
}

// CategoryHigh reports whether the clamped value for a category sits in the
// high band or above.
func (a *Assessment) CategoryHigh(name string) bool {
	return a.Categories[name] >= bandHigh
}

// CategoryCritical reports whether the clamped value for a category sits in
// the critical band.
func (a *Assessment) CategoryCritical(name string) bool {
	return a.Categories[name] >= bandCritical
}

// Suggested mitigation per category, returned when the pre-mitigation value
// crosses the configured trigger.
var suggestedMitigations = map[string]string{
	CategoryFeature:       "enable gradual feature rollout",
	CategoryDependency:    "pin and audit dependency versions",
	CategoryModel:         "run shadow evaluation before model promotion",
	CategoryEnvironmental: "provision standby capacity",
}

// Scorer turns risk factors into a bounded assessment. It is pure: no wall
// clock and no hidden state feed the score.
type Scorer struct {
	cfg    config.Source
	logger *zap.Logger
}

// NewScorer creates a scorer reading weights and triggers from cfg.
func NewScorer(cfg config.Source, logger *zap.Logger) *Scorer {
	return &Scorer{cfg: cfg, logger: logger.Named("risk")}
}

// Score computes an assessment from raw factors and an ordered mitigation
// history. Each history entry names the category it mitigated; repeated
// entries compound: effective = clamped * (1-discount)^count.
func (s *Scorer) Score(factors Factors, mitigations []string) Assessment {
	cfg := s.cfg.Current().Risk

	counts := make(map[string]int, len(mitigations))
	for _, m := range mitigations {
		counts[m]++
	}

	clamped := make(Factors, len(cfg.Weights))
	var score, maxEffective float64
	for _, category := range weightedCategories(cfg.Weights) {
		raw := clamp01(factors[category])
		clamped[category] = raw

		effective := raw * math.Pow(1-cfg.MitigationDiscount, float64(counts[category]))
		if effective > maxEffective {
			maxEffective = effective
		}
		score += cfg.Weights[category] * effective
	}
	// A single critical category dominates: no amount of quiet peers may
	// average a critical risk down below the high band.
	if maxEffective >= bandCritical && score < bandHigh {
		score = bandHigh
	}
	score = clamp01(score)

	return Assessment{
		Score:       score,
		Level:       LevelFor(score),
		Categories:  clamped,
		Mitigations: s.suggest(clamped, cfg.Triggers),
	}
}

// Assess extracts factors from a subject's risk capabilities and scores
// them. Categories the subject does not implement default to zero; that
// default is deliberate and logged so it is never silent.
func (s *Scorer) Assess(subject interface{}, mitigations []string) Assessment {
	factors := make(Factors, len(categoryOrder))

	if v, ok := subject.(FeatureRisky); ok {
		factors[CategoryFeature] = v.FeatureRisk()
	} else {
		s.logger.Warn("subject lacks capability, defaulting to zero",
			zap.String("category", CategoryFeature))
	}
	if v, ok := subject.(DependencyRisky); ok {
		factors[CategoryDependency] = v.DependencyRisk()
	} else {
		s.logger.Warn("subject lacks capability, defaulting to zero",
			zap.String("category", CategoryDependency))
	}
	if v, ok := subject.(ModelRisky); ok {
		factors[CategoryModel] = v.ModelRisk()
	} else {
		s.logger.Warn("subject lacks capability, defaulting to zero",
			zap.String("category", CategoryModel))
	}
	if v, ok := subject.(EnvironmentalRisky); ok {
		factors[CategoryEnvironmental] = v.EnvironmentalRisk()
	} else {
		s.logger.Warn("subject lacks capability, defaulting to zero",
			zap.String("category", CategoryEnvironmental))
	}

	return s.Score(factors, mitigations)
}

// suggest walks categories in stable order and emits the fixed mitigation
// string for every category whose pre-mitigation value crosses its trigger.
func (s *Scorer) suggest(clamped Factors, triggers map[string]float64) []string {
	var out []string
	for _, category := range categoriesInOrder(clamped) {
		trigger, ok := triggers[category]
		if !ok {
			continue
		}
		if clamped[category] > trigger {
			if m, ok := suggestedMitigations[category]; ok {
				out = append(out, m)
			} else {
				out = append(out, "reduce "+category+" risk")
			}
		}
	}
	return out
}

// LevelFor maps a score to its band. Boundaries belong to the higher band
// so a score of exactly 0.3 or 0.7 never flaps between levels.
func LevelFor(score float64) Level {
	switch {
	case score >= bandHigh:
		return LevelHigh
	case score >= bandMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// weightedCategories lists configured categories: the canonical four first,
// then any caller-supplied extras in sorted order.
func weightedCategories(weights map[string]float64) []string {
	out := make([]string, 0, len(weights))
	seen := make(map[string]bool, len(weights))
	for _, c := range categoryOrder {
		if _, ok := weights[c]; ok {
			out = append(out, c)
			seen[c] = true
		}
	}
	var extra []string
	for c := range weights {
		if !seen[c] {
			extra = append(extra, c)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func categoriesInOrder(factors Factors) []string {
	return weightedCategories(factors)
}
