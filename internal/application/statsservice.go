package application

import (
	"log/slog"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ServerStats is a best-effort snapshot of host load.
type ServerStats struct {
	CPU float64
	RAM float64
}

// StatsService reports host CPU and memory utilization for the operator
// console's dashboard.
type StatsService struct {
	cpuPercent func() (float64, error)
	memPercent func() (float64, error)
}

// NewStatsService creates a StatsService backed by gopsutil.
func NewStatsService() *StatsService {
	return &StatsService{
		cpuPercent: func() (float64, error) {
			percents, err := cpu.Percent(0, false)
			if err != nil {
				return 0, err
			}
			if len(percents) == 0 {
				return 0, nil
			}
			return percents[0], nil
		},
		memPercent: func() (float64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.UsedPercent, nil
		},
	}
}

// Stats returns current CPU and RAM percentages, zeroing whichever probe
// fails. The dashboard prefers a zero over an error.
func (s *StatsService) Stats() ServerStats {
	var stats ServerStats

	if v, err := s.cpuPercent(); err != nil {
		slog.Warn("cpu stats unavailable", "error", err)
	} else {
		stats.CPU = v
	}

	if v, err := s.memPercent(); err != nil {
		slog.Warn("memory stats unavailable", "error", err)
	} else {
		stats.RAM = v
	}

	return stats
}
