package logger

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var (
	errorsSim       int64
	errorsStorage   int64
	warnsSim        int64
	warnsStorage    int64
	runsStarted     int64
	runsCompleted   int64
	storageWrites   int64
	storageBytesOut int64
)

func recordWarn(component string) {
	if strings.Contains(component, "storage") {
		atomic.AddInt64(&warnsStorage, 1)
	} else {
		atomic.AddInt64(&warnsSim, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "storage") {
		atomic.AddInt64(&errorsStorage, 1)
	} else {
		atomic.AddInt64(&errorsSim, 1)
	}
}

// IncrementRunStarted counts a simulation run accepted for execution.
func IncrementRunStarted() {
	atomic.AddInt64(&runsStarted, 1)
}

// IncrementRunCompleted counts a simulation run that finished successfully.
func IncrementRunCompleted() {
	atomic.AddInt64(&runsCompleted, 1)
}

// IncrementStorageWrite counts a dataset written to the storage backend.
func IncrementStorageWrite(size int64) {
	atomic.AddInt64(&storageWrites, 1)
	atomic.AddInt64(&storageBytesOut, size)
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and simulator statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_sim":        atomic.LoadInt64(&errorsSim),
		"errors_storage":    atomic.LoadInt64(&errorsStorage),
		"warns_sim":         atomic.LoadInt64(&warnsSim),
		"warns_storage":     atomic.LoadInt64(&warnsStorage),
		"runs_started":      atomic.LoadInt64(&runsStarted),
		"runs_completed":    atomic.LoadInt64(&runsCompleted),
		"storage_writes":    atomic.LoadInt64(&storageWrites),
		"storage_bytes_out": atomic.LoadInt64(&storageBytesOut),
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memStats.Used) / 1024 / 1024,
		"disk_mb":           int64(diskStats.Used) / 1024 / 1024,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		{MetricName: aws.String("ErrorsSim"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsSim)))},
		{MetricName: aws.String("ErrorsStorage"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsStorage)))},
		{MetricName: aws.String("WarnsSim"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsSim)))},
		{MetricName: aws.String("WarnsStorage"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnsStorage)))},
		{MetricName: aws.String("RunsStarted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&runsStarted)))},
		{MetricName: aws.String("RunsCompleted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&runsCompleted)))},
		{MetricName: aws.String("StorageWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&storageWrites)))},
		{MetricName: aws.String("StorageBytesOut"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(atomic.LoadInt64(&storageBytesOut)))},
	}

	publishMetrics(ctx, data)
}
