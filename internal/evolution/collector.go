package evolution

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/blackwell-systems/devkeep/internal/command"
)

// Collector gathers a MetricSnapshot from the host. Collection is
// best-effort: a metric whose source command fails or prints something
// unparseable is reported as zero rather than failing the snapshot.
type Collector struct {
	cmd command.Runner
}

// NewCollector returns a collector that shells out through cmd.
func NewCollector(cmd command.Runner) *Collector {
	return &Collector{cmd: cmd}
}

// Collect reads boot time, memory, disk, and CPU usage.
func (c *Collector) Collect(ctx context.Context) MetricSnapshot {
	return MetricSnapshot{
		Timestamp:       time.Now(),
		BootTimeSeconds: c.bootSeconds(ctx),
		MemoryUsagePct:  c.memoryPct(ctx),
		DiskUsagePct:    c.diskPct(ctx),
		CPUUsagePct:     c.cpuPct(ctx),
	}
}

// bootSeconds measures how long the last boot took: the gap between the
// kernel boot instant and the moment loginwindow came up.
func (c *Collector) bootSeconds(ctx context.Context) float64 {
	out, err := c.cmd.Run(ctx, "sysctl", "-n", "kern.boottime")
	if err != nil {
		return 0
	}
	booted, ok := parseBoottime(out)
	if !ok {
		return 0
	}

	lines, err := c.cmd.RunLines(ctx, "ps", "-axo", "lstart=,comm=")
	if err != nil {
		return 0
	}
	login, ok := parseLoginwindowStart(lines)
	if !ok {
		return 0
	}

	secs := login.Sub(booted).Seconds()
	if secs < 0 {
		return 0
	}
	return secs
}

func (c *Collector) memoryPct(ctx context.Context) float64 {
	lines, err := c.cmd.RunLines(ctx, "vm_stat")
	if err != nil {
		return 0
	}
	return parseVMStat(lines)
}

func (c *Collector) diskPct(ctx context.Context) float64 {
	lines, err := c.cmd.RunLines(ctx, "df", "-k", "/")
	if err != nil {
		return 0
	}
	return parseDiskCapacity(lines)
}

func (c *Collector) cpuPct(ctx context.Context) float64 {
	lines, err := c.cmd.RunLines(ctx, "ps", "-A", "-o", "%cpu=")
	if err != nil {
		return 0
	}
	return parseCPUSum(lines, runtime.NumCPU())
}

// parseBoottime extracts the boot instant from sysctl kern.boottime output.
// Format: "{ sec = 1708321456, usec = 123456 } Mon Feb 19 08:04:16 2026"
func parseBoottime(out string) (time.Time, bool) {
	idx := strings.Index(out, "sec =")
	if idx < 0 {
		return time.Time{}, false
	}
	rest := strings.TrimSpace(out[idx+len("sec ="):])
	end := strings.IndexAny(rest, ", }")
	if end < 0 {
		end = len(rest)
	}
	sec, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// parseLoginwindowStart finds the loginwindow process in ps lstart output
// and returns its start time. ps prints lstart in ANSIC form:
// "Tue Feb 19 08:14:02 2026 /System/Library/CoreServices/loginwindow.app/Contents/MacOS/loginwindow"
func parseLoginwindowStart(lines []string) (time.Time, bool) {
	for _, line := range lines {
		if !strings.Contains(line, "loginwindow") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		t, err := time.ParseInLocation(time.ANSIC, strings.Join(fields[:5], " "), time.Local)
		if err != nil {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// parseVMStat computes used-memory percent from vm_stat output. Used pages
// are active + wired + compressed; the denominator adds free, inactive, and
// speculative pages.
func parseVMStat(lines []string) float64 {
	pages := map[string]float64{}
	for _, line := range lines {
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[idx+1:]), "."))
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			continue
		}
		pages[key] = n
	}

	used := pages["Pages active"] + pages["Pages wired down"] + pages["Pages occupied by compressor"]
	total := used + pages["Pages free"] + pages["Pages inactive"] + pages["Pages speculative"]
	if total <= 0 {
		return 0
	}
	return clampPct(used / total * 100)
}

// parseDiskCapacity extracts the root volume's Capacity column from df -k.
// Data line format: "/dev/disk3s1s1  971350180 22125044 ... 45% ... /"
func parseDiskCapacity(lines []string) float64 {
	if len(lines) < 2 {
		return 0
	}
	for _, field := range strings.Fields(lines[1]) {
		if !strings.HasSuffix(field, "%") {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSuffix(field, "%"), 64)
		if err != nil {
			continue
		}
		return clampPct(n)
	}
	return 0
}

// parseCPUSum sums per-process %cpu values and normalizes by core count.
func parseCPUSum(lines []string, cores int) float64 {
	if cores <= 0 {
		cores = 1
	}
	var sum float64
	for _, line := range lines {
		n, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			continue
		}
		sum += n
	}
	return clampPct(sum / float64(cores))
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
