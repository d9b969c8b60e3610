package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type roundKey struct {
	round string
	event string
}

type roundMetrics struct {
	mu        sync.Mutex
	concluded map[roundKey]uint64
	duration  map[string]*histogram
}

var roundCollector = &roundMetrics{
	concluded: make(map[roundKey]uint64),
	duration:  make(map[string]*histogram),
}

// ObserveRound records the conclusion of a protocol round.
func ObserveRound(round, event string, duration time.Duration) {
	roundCollector.observe(round, event, duration)
}

func (c *roundMetrics) observe(round, event string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.concluded[roundKey{round: round, event: event}]++

	hist := c.duration[round]
	if hist == nil {
		hist = newRoundHistogram()
		c.duration[round] = hist
	}
	hist.observe(duration.Seconds())
}

func newRoundHistogram() *histogram {
	// 轮次包含链上等待，桶上界比 HTTP 直方图宽得多。
	buckets := []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (c *roundMetrics) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type concludedMetric struct {
		roundKey
		value uint64
	}
	type durationMetric struct {
		round   string
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	concluded := make([]concludedMetric, 0, len(c.concluded))
	for key, value := range c.concluded {
		concluded = append(concluded, concludedMetric{roundKey: key, value: value})
	}
	durations := make([]durationMetric, 0, len(c.duration))
	for round, hist := range c.duration {
		durations = append(durations, durationMetric{
			round:   round,
			buckets: append([]float64(nil), hist.buckets...),
			counts:  append([]uint64(nil), hist.counts...),
			sum:     hist.sum,
			count:   hist.count,
		})
	}

	sort.Slice(concluded, func(i, j int) bool {
		if concluded[i].round == concluded[j].round {
			return concluded[i].event < concluded[j].event
		}
		return concluded[i].round < concluded[j].round
	})
	sort.Slice(durations, func(i, j int) bool {
		return durations[i].round < durations[j].round
	})

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP liquisafe_rounds_concluded_total Total number of protocol rounds concluded, by outcome.\n")
	builder.WriteString("# TYPE liquisafe_rounds_concluded_total counter\n")
	for _, metric := range concluded {
		builder.WriteString(fmt.Sprintf("liquisafe_rounds_concluded_total{round=\"%s\",event=\"%s\"} %d\n",
			escape(metric.round), escape(metric.event), metric.value))
	}

	builder.WriteString("# HELP liquisafe_round_duration_seconds Protocol round duration in seconds.\n")
	builder.WriteString("# TYPE liquisafe_round_duration_seconds histogram\n")
	for _, metric := range durations {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("liquisafe_round_duration_seconds_bucket{round=\"%s\",le=\"%s\"} %d\n",
				escape(metric.round), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("liquisafe_round_duration_seconds_bucket{round=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.round), metric.count))
		builder.WriteString(fmt.Sprintf("liquisafe_round_duration_seconds_sum{round=\"%s\"} %s\n",
			escape(metric.round), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("liquisafe_round_duration_seconds_count{round=\"%s\"} %d\n",
			escape(metric.round), metric.count))
	}

	return builder.String()
}
