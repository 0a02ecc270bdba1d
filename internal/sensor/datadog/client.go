// Package datadog records pipeline statistics to a dogstatsd agent.
//
// The Monitor wraps the base sensor bookkeeping and additionally ships every
// lifecycle event as tagged statsd metrics. Submission is fire-and-forget
// over UDP: transport failures never reach the instrumented code path.
package datadog

import (
	"regexp"
	"sort"
	"time"
)

// statsdClient is the slice of the dogstatsd client the facade uses.
// *statsd.Client from github.com/DataDog/datadog-go/v5 satisfies it.
type statsdClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	TimeInMilliseconds(name string, value float64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Flush() error
	Close() error
}

// sanitizeRE matches every character not allowed in a tag key or value.
var sanitizeRE = regexp.MustCompile(`[^0-9a-zA-Z_]`)

const sanitizeSubstitution = "_"

// Client is a label-aware facade over a dogstatsd client. Every call
// sanitizes label keys and values, applies the configured sample rate, and
// ignores transport errors.
type Client struct {
	statsd statsdClient
	rate   float64
}

// Gauge sets the instantaneous value of a metric.
func (c *Client) Gauge(name string, value float64, labels map[string]string) {
	_ = c.statsd.Gauge(name, value, encodeLabels(labels), c.rate)
}

// Increment adjusts a counter upward by value.
func (c *Client) Increment(name string, value int64, labels map[string]string) {
	_ = c.statsd.Count(name, value, encodeLabels(labels), c.rate)
}

// Decrement adjusts a counter downward by value.
func (c *Client) Decrement(name string, value int64, labels map[string]string) {
	_ = c.statsd.Count(name, -value, encodeLabels(labels), c.rate)
}

// Timing records a duration sample in milliseconds.
func (c *Client) Timing(name string, ms float64, labels map[string]string) {
	_ = c.statsd.TimeInMilliseconds(name, ms, encodeLabels(labels), c.rate)
}

// Histogram records a value into a histogram.
func (c *Client) Histogram(name string, value float64, labels map[string]string) {
	_ = c.statsd.Histogram(name, value, encodeLabels(labels), c.rate)
}

// Timed returns a stop function that records the elapsed time since the call
// as a Timing sample when invoked.
func (c *Client) Timed(name string, labels map[string]string) func() {
	start := time.Now()
	return func() {
		c.Timing(name, time.Since(start).Seconds()*1000, labels)
	}
}

// Flush forces any buffered metrics out to the agent.
func (c *Client) Flush() error {
	return c.statsd.Flush()
}

// Close flushes and tears down the underlying transport.
func (c *Client) Close() error {
	return c.statsd.Close()
}

// encodeLabels renders a label set as dogstatsd "key:value" tags, sanitizing
// keys and values independently. An empty set encodes as nil so the transport
// sends no tag section at all.
func encodeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]string, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, sanitize(k)+":"+sanitize(labels[k]))
	}
	return tags
}

func sanitize(s string) string {
	return sanitizeRE.ReplaceAllString(s, sanitizeSubstitution)
}
