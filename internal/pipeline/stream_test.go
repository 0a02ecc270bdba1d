package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmetric-io/flowmetric/internal/types"
)

func event(value string) *types.Event {
	return &types.Event{Message: &types.Message{Value: []byte(value)}}
}

func TestStreamShortLabel(t *testing.T) {
	s := NewStream("withdrawals")
	assert.Equal(t, "Stream: <Topic: withdrawals>", s.ShortLabel())
	assert.Equal(t, "withdrawals", s.Topic())
}

func TestStreamProcessChain(t *testing.T) {
	appendStar := func(_ context.Context, e *types.Event) (*types.Event, error) {
		e.Message.Value = append(e.Message.Value, '*')
		return e, nil
	}
	s := NewStream("t", appendStar, appendStar)

	out, err := s.process(context.Background(), event("x"))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, []byte("x**"), out.Message.Value)
}

func TestStreamProcessFilters(t *testing.T) {
	drop := func(_ context.Context, _ *types.Event) (*types.Event, error) {
		return nil, nil
	}
	boom := func(_ context.Context, _ *types.Event) (*types.Event, error) {
		t.Fatal("processor after a filter must not run")
		return nil, nil
	}
	s := NewStream("t", drop, boom)

	out, err := s.process(context.Background(), event("x"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStreamProcessError(t *testing.T) {
	fail := func(_ context.Context, _ *types.Event) (*types.Event, error) {
		return nil, errors.New("bad event")
	}
	s := NewStream("t", fail)

	out, err := s.process(context.Background(), event("x"))
	assert.Error(t, err)
	assert.Nil(t, out)
}

func TestStreamProcessEmptyChain(t *testing.T) {
	s := NewStream("t")
	in := event("x")
	out, err := s.process(context.Background(), in)
	require.NoError(t, err)
	assert.Same(t, in, out)
}
