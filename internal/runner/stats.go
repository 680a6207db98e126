package runner

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"conmux/pkg/console"
)

// Watch samples the child's resource usage on the given interval and
// prints each sample as a status line. The returned func stops the
// watcher, waits for it, and prints a closing summary with elapsed
// time, peak RSS and mean CPU. Safe to call after the child exited.
func Watch(con *console.Console, pid int, interval time.Duration) func() {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Warn("cannot watch process stats", "pid", pid, "error", err)
		return func() {}
	}

	start := time.Now()
	done := make(chan struct{})
	var (
		wg      sync.WaitGroup
		peakRSS uint64
		cpuSum  float64
		samples int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				running, err := p.IsRunning()
				if err != nil || !running {
					return
				}

				// Individual metrics may fail for restricted or
				// short-lived processes; report whatever we got.
				var parts []string
				if cpuPercent, err := p.CPUPercent(); err == nil {
					cpuSum += cpuPercent
					samples++
					parts = append(parts, fmt.Sprintf("cpu %.1f%%", cpuPercent))
				}
				if memInfo, err := p.MemoryInfo(); err == nil {
					if memInfo.RSS > peakRSS {
						peakRSS = memInfo.RSS
					}
					parts = append(parts, fmt.Sprintf("rss %.1f MB", float64(memInfo.RSS)/1024/1024))
				}
				if numThreads, err := p.NumThreads(); err == nil {
					parts = append(parts, fmt.Sprintf("threads %d", numThreads))
				}
				if len(parts) == 0 {
					continue
				}
				con.Statf(console.StatusStat, "pid %d %s", pid, strings.Join(parts, " "))
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			line := fmt.Sprintf("pid %d finished after %s", pid, time.Since(start).Round(time.Millisecond))
			if peakRSS > 0 {
				line += fmt.Sprintf(" peak rss %.1f MB", float64(peakRSS)/1024/1024)
			}
			if samples > 0 {
				line += fmt.Sprintf(" mean cpu %.1f%%", cpuSum/float64(samples))
			}
			con.Statf(console.StatusStat, "%s", line)
		})
	}
}
