package sem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func schedulerWith(t *testing.T, commands ...string) (*CommandScheduler, map[string]*recordingOutput) {
	registry := NewValueRegistry()
	outputs := make(map[string]*recordingOutput)
	for _, command := range commands {
		out := newOutput("sensor_" + command)
		require.NoError(t, registry.Add(out, command))
		outputs[command] = out
	}
	return NewCommandScheduler(registry, 200*time.Millisecond, time.Millisecond, nil), outputs
}

func TestPollOnceInConfigurationOrder(t *testing.T) {

	assert := assert.New(t)

	meter := NewSimulatedMeter(1, "00000")
	require.NoError(t, meter.Open())
	scheduler, outputs := schedulerWith(t, "=M", "E", "W")

	report := scheduler.PollOnce(context.Background(), meter, 1, "00000")
	assert.Equal([]string{"=M", "E", "W"}, meter.Sent())
	assert.Len(report.Readings, 3)
	assert.Empty(report.Skipped)
	assert.Nil(report.LinkErr)
	assert.Equal([]float64{1230}, outputs["=M"].Values())
	assert.Equal([]float64{1234.567}, outputs["E"].Values())
}

func TestPollOnceSkipsTimedOutBinding(t *testing.T) {

	assert := assert.New(t)

	meter := NewSimulatedMeter(1, "00000").Silence("W")
	require.NoError(t, meter.Open())
	scheduler, outputs := schedulerWith(t, "E", "W", "V", "U")

	report := scheduler.PollOnce(context.Background(), meter, 1, "00000")
	assert.Len(report.Readings, 3)
	require.Len(t, report.Skipped, 1)
	assert.Equal("W", report.Skipped[0].Command)
	assert.ErrorIs(report.Skipped[0].Err, ErrCommandTimeout)
	assert.Nil(report.LinkErr)
	assert.Empty(outputs["W"].Values())
	for _, command := range []string{"E", "V", "U"} {
		assert.Len(outputs[command].Values(), 1, command)
	}
}

func TestPollOnceSkipsCorruptReply(t *testing.T) {

	meter := NewSimulatedMeter(1, "00000").Garble("E")
	require.NoError(t, meter.Open())
	scheduler, outputs := schedulerWith(t, "E", "W")

	report := scheduler.PollOnce(context.Background(), meter, 1, "00000")
	require.Len(t, report.Skipped, 1)
	assert.ErrorIs(t, report.Skipped[0].Err, ErrChecksumMismatch)
	assert.Empty(t, outputs["E"].Values())
	assert.Len(t, outputs["W"].Values(), 1)
}

func TestPollOnceDiscardsUnrelatedReply(t *testing.T) {

	// the meter answers E with a W reply, which never matches
	meter := NewSimulatedMeter(1, "00000").Reply("E", "W00000001")
	require.NoError(t, meter.Open())
	scheduler, outputs := schedulerWith(t, "E")

	report := scheduler.PollOnce(context.Background(), meter, 1, "00000")
	require.Len(t, report.Skipped, 1)
	assert.ErrorIs(t, report.Skipped[0].Err, ErrCommandTimeout)
	assert.Empty(t, outputs["E"].Values())
}

func TestPollOnceReportsLinkError(t *testing.T) {

	unplugged := errors.New("unplugged")
	meter := NewSimulatedMeter(1, "00000").FailSend(unplugged)
	require.NoError(t, meter.Open())
	scheduler, _ := schedulerWith(t, "E", "W")

	report := scheduler.PollOnce(context.Background(), meter, 1, "00000")
	assert.Empty(t, report.Readings)
	assert.Len(t, report.Skipped, 2)
	assert.ErrorIs(t, report.LinkErr, unplugged)
}

func TestPollOnceAbandonedOnCancel(t *testing.T) {

	meter := NewSimulatedMeter(1, "00000").Stall(50 * time.Millisecond)
	require.NoError(t, meter.Open())
	scheduler, _ := schedulerWith(t, "E", "W", "V", "U")

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	report := scheduler.PollOnce(ctx, meter, 1, "00000")

	assert.Less(t, len(report.Readings), 4)
	assert.Len(t, report.Skipped, 4-len(report.Readings))
	assert.Nil(t, report.LinkErr)
	assert.Less(t, report.Duration, time.Second)
}
