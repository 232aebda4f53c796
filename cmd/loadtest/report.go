package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sort"
	"text/tabwriter"
	"time"
)

// Summary condenses one endpoint's samples.
type Summary struct {
	Endpoint  string
	Requests  int
	Errors    int
	Empty     int
	RPS       float64
	Min       time.Duration
	Avg       time.Duration
	P50       time.Duration
	P90       time.Duration
	P99       time.Duration
	Max       time.Duration
	StdDev    time.Duration
	ByStatus  map[int]int
	Transport int
}

func (s Summary) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Requests) * 100
}

func (s Summary) EmptyRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Empty) / float64(s.Requests) * 100
}

// Summaries returns one Summary per endpoint, sorted by endpoint name.
// Transport errors count as errors but are left out of the latency figures.
func (r *Results) Summaries(elapsed time.Duration) []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Summary, 0, len(r.samples))
	for endpoint, samples := range r.samples {
		out = append(out, summarize(endpoint, samples, elapsed))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

func summarize(endpoint string, samples []Sample, elapsed time.Duration) Summary {
	s := Summary{Endpoint: endpoint, Requests: len(samples), ByStatus: make(map[int]int)}
	if elapsed > 0 {
		s.RPS = float64(len(samples)) / elapsed.Seconds()
	}

	latencies := make([]time.Duration, 0, len(samples))
	for _, sample := range samples {
		if sample.Status == 0 {
			s.Transport++
			s.Errors++
			continue
		}
		s.ByStatus[sample.Status]++
		if sample.Status < 200 || sample.Status >= 300 {
			s.Errors++
		}
		if sample.Empty {
			s.Empty++
		}
		latencies = append(latencies, sample.Latency)
	}
	if len(latencies) == 0 {
		return s
	}

	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	s.Avg = sum / time.Duration(len(latencies))
	var sq float64
	for _, l := range latencies {
		d := float64(l - s.Avg)
		sq += d * d
	}
	s.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	s.Min, s.Max = latencies[0], latencies[len(latencies)-1]
	s.P50 = percentile(latencies, 50)
	s.P90 = percentile(latencies, 90)
	s.P99 = percentile(latencies, 99)
	return s
}

// percentile uses the nearest-rank method on sorted samples.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}

func total(summaries []Summary) int {
	n := 0
	for _, s := range summaries {
		n += s.Requests
	}
	return n
}

func printReport(w io.Writer, summaries []Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "endpoint\trequests\trps\terrors\tempty\tmin\tavg\tp50\tp90\tp99\tmax\tstddev\t")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%.2f%%\t%.2f%%\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Endpoint, s.Requests, s.RPS, s.ErrorRate(), s.EmptyRate(),
			s.Min, s.Avg, s.P50, s.P90, s.P99, s.Max, s.StdDev)
	}
	tw.Flush()

	for _, s := range summaries {
		codes := make([]int, 0, len(s.ByStatus))
		for code := range s.ByStatus {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		fmt.Fprintf(w, "\n%s status codes:", s.Endpoint)
		for _, code := range codes {
			fmt.Fprintf(w, " %d=%d", code, s.ByStatus[code])
		}
		if s.Transport > 0 {
			fmt.Fprintf(w, " transport=%d", s.Transport)
		}
		fmt.Fprintln(w)
	}
}
