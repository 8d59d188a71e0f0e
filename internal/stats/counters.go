package stats

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryStat is the subset of virtual memory counters used in snapshots.
type MemoryStat struct {
	Total       uint64
	Available   uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
}

// Counters reads OS CPU and memory counters.
type Counters interface {
	// CPUPercent returns utilization since the previous call, either one
	// aggregate value or one value per core in core index order.
	CPUPercent(ctx context.Context, perCPU bool) ([]float64, error)
	VirtualMemory(ctx context.Context) (MemoryStat, error)
}

// PSUtilCounters reads counters through gopsutil.
type PSUtilCounters struct{}

// CPUPercent never blocks: a zero interval compares against the previous call.
func (PSUtilCounters) CPUPercent(ctx context.Context, perCPU bool) ([]float64, error) {
	return cpu.PercentWithContext(ctx, 0, perCPU)
}

func (PSUtilCounters) VirtualMemory(ctx context.Context) (MemoryStat, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStat{}, err
	}
	return MemoryStat{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Used,
		Free:        vm.Free,
		UsedPercent: vm.UsedPercent,
	}, nil
}
