// internal/metrics/system.go
package metrics

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// SystemSampler reads host gauges from /proc and statfs. Every source is
// isolated: a source that fails to read leaves the previous value in place
// and the sampler keeps going, so one unreadable gauge never aborts a
// collection tick.
type SystemSampler struct {
	mu       sync.Mutex
	last     InfrastructureMetrics
	prevIdle uint64
	prevBusy uint64
	rootPath string
	procPath string
	logger   *zap.Logger
}

// NewSystemSampler creates a sampler reading from the default /proc mount
// and the root filesystem.
func NewSystemSampler(logger *zap.Logger) *SystemSampler {
	return &SystemSampler{
		rootPath: "/",
		procPath: "/proc",
		logger:   logger.Named("system"),
	}
}

// Sample reads all host gauges, substituting last-known-good values for any
// source that fails. The context bounds the whole read; if it is already
// cancelled the previous reading is returned untouched.
func (s *SystemSampler) Sample(ctx context.Context) InfrastructureMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return s.last
	}

	if cpu, err := s.readCPU(); err != nil {
		s.logger.Debug("cpu read failed", zap.Error(err))
	} else {
		s.last.CPUPercent = cpu
	}

	if ctx.Err() == nil {
		if usedPct, freeMB, err := s.readMemory(); err != nil {
			s.logger.Debug("memory read failed", zap.Error(err))
		} else {
			s.last.MemoryUsedPercent = usedPct
			s.last.MemoryFreeMB = freeMB
		}
	}

	if ctx.Err() == nil {
		if disk, err := s.readDisk(); err != nil {
			s.logger.Debug("disk read failed", zap.Error(err))
		} else {
			s.last.DiskUsedPercent = disk
		}
	}

	if ctx.Err() == nil {
		if rx, tx, err := s.readNetwork(); err != nil {
			s.logger.Debug("network read failed", zap.Error(err))
		} else {
			s.last.NetworkRxBytes = rx
			s.last.NetworkTxBytes = tx
		}
	}

	return s.last
}

// readCPU derives utilization from the delta of /proc/stat aggregate jiffies.
// The first call has no previous reading and reports zero.
func (s *SystemSampler) readCPU() (float64, error) {
	f, err := os.Open(s.procPath + "/stat")
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("empty %s/stat", s.procPath)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, fmt.Errorf("unexpected stat line %q", scanner.Text())
	}

	var vals []uint64
	for _, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, err
		}
		vals = append(vals, v)
	}

	// user nice system idle iowait irq softirq steal ...
	idle := vals[3]
	if len(vals) > 4 {
		idle += vals[4]
	}
	var total uint64
	for _, v := range vals {
		total += v
	}
	busy := total - idle

	dIdle := idle - s.prevIdle
	dBusy := busy - s.prevBusy
	first := s.prevIdle == 0 && s.prevBusy == 0
	s.prevIdle = idle
	s.prevBusy = busy

	if first || dIdle+dBusy == 0 {
		return 0, nil
	}
	return 100 * float64(dBusy) / float64(dBusy+dIdle), nil
}

func (s *SystemSampler) readMemory() (usedPercent, freeMB float64, err error) {
	f, err := os.Open(s.procPath + "/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	var totalKB, availKB float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, perr := strconv.ParseFloat(fields[1], 64)
		if perr != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = v
		case "MemAvailable:":
			availKB = v
		}
	}
	if totalKB == 0 {
		return 0, 0, fmt.Errorf("meminfo missing MemTotal")
	}
	return 100 * (totalKB - availKB) / totalKB, availKB / 1024, nil
}

func (s *SystemSampler) readDisk() (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(s.rootPath, &st); err != nil {
		return 0, err
	}
	total := float64(st.Blocks) * float64(st.Bsize)
	if total == 0 {
		return 0, fmt.Errorf("statfs reported zero blocks")
	}
	free := float64(st.Bavail) * float64(st.Bsize)
	return 100 * (total - free) / total, nil
}

func (s *SystemSampler) readNetwork() (rx, tx float64, err error) {
	f, err := os.Open(s.procPath + "/net/dev")
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		iface := strings.TrimSpace(line[:idx])
		if iface == "lo" {
			continue
		}
		fields := strings.Fields(line[idx+1:])
		if len(fields) < 9 {
			continue
		}
		if v, perr := strconv.ParseFloat(fields[0], 64); perr == nil {
			rx += v
		}
		if v, perr := strconv.ParseFloat(fields[8], 64); perr == nil {
			tx += v
		}
	}
	return rx, tx, nil
}
