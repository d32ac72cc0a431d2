package stats

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const megabyte = 1 << 20

// Reporter periodically logs the runtime usage of the process and, once its
// context is done, appends a snapshot of the gathered metrics to a file.
type Reporter struct {
	Gatherer prometheus.Gatherer
	// DumpPath is the file the final snapshot is appended to. No snapshot is
	// written if empty.
	DumpPath string
	Interval time.Duration
}

// Start runs the reporter in background until ctx is done. The returned
// channel is closed once the final snapshot has been written.
func (r Reporter) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(r.Interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				LogRuntimeStatistics()
			case <-ctx.Done():
				if r.DumpPath == "" || r.Gatherer == nil {
					return
				}
				if err := Dump(r.Gatherer, r.DumpPath); err != nil {
					log.WithError(err).Warn("failed to dump metrics")
				}
				return
			}
		}
	}()
	return done
}

// LogRuntimeStatistics logs heap usage and the number of running goroutines.
func LogRuntimeStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.WithFields(log.Fields{
		"heap_alloc_mb":  float64(memStats.HeapAlloc) / megabyte,
		"total_alloc_mb": float64(memStats.TotalAlloc) / megabyte,
		"mallocs":        memStats.Mallocs,
		"frees":          memStats.Frees,
		"goroutines":     runtime.NumGoroutine(),
	}).Info("runtime statistics")
}

// Dump appends the text form of every metric family of the gatherer to the
// file at path.
func Dump(gatherer prometheus.Gatherer, path string) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, f := range families {
		if _, err := writer.WriteString(f.String() + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}
