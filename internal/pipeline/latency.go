package pipeline

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

const defaultLatencyWindow = 256

// LatencyStats summarizes recent tick durations.
type LatencyStats struct {
	Count    uint64 // ticks observed since start
	Overruns uint64 // ticks over budget since start
	Mean     time.Duration
	StdDev   time.Duration
	P95      time.Duration
	Max      time.Duration
}

// LatencyTracker keeps a sliding window of tick durations.
type LatencyTracker struct {
	mu       sync.Mutex
	budget   time.Duration
	window   []float64 // seconds
	next     int
	full     bool
	count    uint64
	overruns uint64
}

// NewLatencyTracker creates a tracker over the last window ticks. A zero
// budget disables overrun accounting.
func NewLatencyTracker(window int, budget time.Duration) *LatencyTracker {
	if window <= 0 {
		window = defaultLatencyWindow
	}
	return &LatencyTracker{budget: budget, window: make([]float64, window)}
}

// Observe records one tick and reports whether it exceeded the budget.
func (l *LatencyTracker) Observe(d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window[l.next] = d.Seconds()
	l.next++
	if l.next == len(l.window) {
		l.next = 0
		l.full = true
	}
	l.count++

	over := l.budget > 0 && d > l.budget
	if over {
		l.overruns++
	}
	return over
}

// Budget returns the configured frame budget.
func (l *LatencyTracker) Budget() time.Duration {
	return l.budget
}

// Stats computes mean, standard deviation, 95th percentile and maximum
// over the current window.
func (l *LatencyTracker) Stats() LatencyStats {
	l.mu.Lock()
	n := l.next
	if l.full {
		n = len(l.window)
	}
	samples := make([]float64, n)
	copy(samples, l.window[:n])
	out := LatencyStats{Count: l.count, Overruns: l.overruns}
	l.mu.Unlock()

	if n == 0 {
		return out
	}

	sort.Float64s(samples)
	mean, std := stat.MeanStdDev(samples, nil)
	if n < 2 {
		std = 0
	}
	out.Mean = seconds(mean)
	out.StdDev = seconds(std)
	out.P95 = seconds(stat.Quantile(0.95, stat.Empirical, samples, nil))
	out.Max = seconds(samples[n-1])
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
