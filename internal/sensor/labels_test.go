package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowmetric-io/flowmetric/internal/types"
)

type fakeStream struct{ label string }

func (s fakeStream) ShortLabel() string { return s.label }

type fakeTable struct{ name string }

func (t fakeTable) Name() string { return t.name }

func TestStreamLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{
			name:  "topic stream",
			label: "Stream: <Topic: withdrawals>",
			want:  "topic_withdrawals",
		},
		{
			name:  "nested chain",
			label: "Stream: <Stream: <Topic: orders>>",
			want:  "stream_topic_orders",
		},
		{
			name:  "no prefix",
			label: "orders",
			want:  "orders",
		},
		{
			name:  "whitespace runs collapse",
			label: "Stream:   <Topic:\t payments >",
			want:  "topic_payments",
		},
		{
			name:  "empty",
			label: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StreamLabel(fakeStream{tt.label}))
		})
	}
}

func TestStreamLabelNormalized(t *testing.T) {
	// Whatever the input, the derived label contains none of the collapsed
	// characters and no leading/trailing underscore.
	inputs := []string{
		"Stream: <Topic: a>",
		"::::",
		"< > < >",
		"Stream: <Combined: topic1+topic2>",
	}
	for _, in := range inputs {
		got := StreamLabel(fakeStream{in})
		assert.NotRegexp(t, `[<>:\s]`, got)
		assert.NotRegexp(t, `^_|_$`, got)
	}
}

func TestTPLabels(t *testing.T) {
	labels := TPLabels(types.TP{Topic: "orders", Partition: 2})
	assert.Equal(t, map[string]string{"topic": "orders", "partition": "2"}, labels)
}

func TestTopicLabels(t *testing.T) {
	labels := TopicLabels("payments")
	assert.Equal(t, map[string]string{"topic": "payments"}, labels)
	_, ok := labels["partition"]
	assert.False(t, ok, "send-initiated labels must not carry a partition")
}

func TestTableLabels(t *testing.T) {
	assert.Equal(t, map[string]string{"table": "balances"}, TableLabels(fakeTable{"balances"}))
}

func TestMergeLabels(t *testing.T) {
	tp := types.TP{Topic: "orders", Partition: 0}
	merged := MergeLabels(TPLabels(tp), StreamLabels(fakeStream{"Stream: <Topic: orders>"}))
	assert.Equal(t, map[string]string{
		"topic":     "orders",
		"partition": "0",
		"stream":    "topic_orders",
	}, merged)
}

func TestMergeLabelsEmptyIsNil(t *testing.T) {
	assert.Nil(t, MergeLabels())
	assert.Nil(t, MergeLabels(nil, map[string]string{}))
}
