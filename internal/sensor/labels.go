package sensor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/flowmetric-io/flowmetric/internal/types"
)

// streamNormalizeRE collapses the characters a stream label uses for
// decoration into single underscores, turning for example
//
//	"Stream: <Topic: withdrawals>"
//
// into "Stream_Topic_withdrawals" before trimming and lower-casing.
var streamNormalizeRE = regexp.MustCompile(`[<>:\s]+`)

// StreamLabel derives the metric label for a stream from its human-readable
// label: the "Stream:" prefix is stripped, runs of '<', '>', ':' and
// whitespace collapse to a single '_', leading and trailing underscores are
// trimmed, and the result is lower-cased.
//
// The label is derived fresh on every call; stream labels may change as the
// host rewires a stream, so the result is never cached.
func StreamLabel(s types.Stream) string {
	label := strings.TrimPrefix(s.ShortLabel(), "Stream:")
	label = streamNormalizeRE.ReplaceAllString(label, "_")
	label = strings.Trim(label, "_")
	return strings.ToLower(label)
}

// TPLabels returns the label contribution of a topic-partition.
func TPLabels(tp types.TP) map[string]string {
	return map[string]string{
		"topic":     tp.Topic,
		"partition": strconv.Itoa(int(tp.Partition)),
	}
}

// TopicLabels returns a label set carrying only the topic. Used for sends
// that have not yet been routed to a partition.
func TopicLabels(topic string) map[string]string {
	return map[string]string{"topic": topic}
}

// StreamLabels returns the label contribution of a stream.
func StreamLabels(s types.Stream) map[string]string {
	return map[string]string{"stream": StreamLabel(s)}
}

// TableLabels returns the label contribution of a table.
func TableLabels(t types.Table) map[string]string {
	return map[string]string{"table": t.Name()}
}

// MergeLabels combines label contributions into one set, later contributions
// winning on key collisions. Returns nil when nothing contributes, so callers
// pass "no tags" to the transport rather than an empty collection.
func MergeLabels(parts ...map[string]string) map[string]string {
	var out map[string]string
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(part))
		}
		for k, v := range part {
			out[k] = v
		}
	}
	return out
}
