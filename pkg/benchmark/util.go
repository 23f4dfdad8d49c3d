package benchmark

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// A helper object for timing events, the timer can be reused multiple times in
// order to derive averages or other statistics (Record() saves the current
// measurement and begins a new measurement).
type PerfTimer struct {
	Vals  []float64 // seconds, the stats module wants float64
	cur   time.Duration
	start time.Time
}

// Begin (or resume) the timer
func (self *PerfTimer) Start() {
	self.start = time.Now()
}

// Stop (or pause) the timer
func (self *PerfTimer) Stop() {
	self.cur += time.Since(self.start)
}

// Finalize the timer, adding it as a new datapoint and resetting the timer to
// 0.
func (self *PerfTimer) Record() {
	self.Stop()
	self.Add(self.cur)
	self.cur = 0
}

// Add an externally measured datapoint (e.g. reported by a worker process)
func (self *PerfTimer) Add(d time.Duration) {
	self.Vals = append(self.Vals, d.Seconds())
}

func (self *PerfTimer) MeanStdDev() (mean, std float64) {
	return stat.MeanStdDev(self.Vals, nil)
}

// Collects named timers for a series of sorts. Not every timer applies to
// every kind of sort.
type SortStats map[string]*PerfTimer

// Get the named timer, creating it if needed
func (stats SortStats) Timer(name string) *PerfTimer {
	timer, ok := stats[name]
	if !ok {
		timer = &PerfTimer{}
		stats[name] = timer
	}
	return timer
}

// Print mean, standard deviation and median of every timer, in name order
func ReportStats(stats SortStats, writer io.Writer) {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		timer := stats[name]
		if len(timer.Vals) == 0 {
			continue
		}
		mean, stdev := timer.MeanStdDev()

		sorted := append([]float64(nil), timer.Vals...)
		sort.Float64s(sorted)
		median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

		fmt.Fprintf(writer, "%v (n):\t%v\n", name, len(timer.Vals))
		fmt.Fprintf(writer, "%v (mean):\t%vs\n", name, mean)
		fmt.Fprintf(writer, "%v (std):\t%vs\n", name, stdev)
		fmt.Fprintf(writer, "%v (median):\t%vs\n", name, median)
	}
}
