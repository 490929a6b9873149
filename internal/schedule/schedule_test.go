package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/berfenger/sem2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPollSchedule(t *testing.T) {

	ticks := make(chan domain.PollTick, 10)
	s, err := NewPollSchedule(50*time.Millisecond, func(tick domain.PollTick) {
		select {
		case ticks <- tick:
		default:
		}
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	var received []domain.PollTick
	timeout := time.After(2 * time.Second)
	for len(received) < 2 {
		select {
		case tick := <-ticks:
			received = append(received, tick)
		case <-timeout:
			t.Fatalf("got %d ticks", len(received))
		}
	}
	assert.True(t, received[1].Time.After(received[0].Time))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)
}

func TestPollScheduleInvalidInterval(t *testing.T) {
	_, err := NewPollSchedule(0, func(domain.PollTick) {}, zap.NewNop())
	assert.Error(t, err)
}
