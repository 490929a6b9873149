package actor

import (
	"testing"
	"time"

	"github.com/berfenger/sem2mqtt/internal/core/domain"
	"github.com/berfenger/sem2mqtt/internal/core/events"
	"github.com/berfenger/sem2mqtt/internal/util/actorutil"
	"github.com/berfenger/sem2mqtt/pkg/sem"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testMeterDriver(t *testing.T, meter *sem.TestMeter, es *eventstream.EventStream) *sem.Driver {
	cfg := sem.DefaultDriverConfig()
	cfg.Address = 7
	cfg.CommandTimeout = 100 * time.Millisecond
	cfg.AuthTimeout = 100 * time.Millisecond
	cfg.CommandDelay = time.Millisecond
	driver, err := sem.NewDriver(meter, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, driver.AddSensor(events.NewStreamOutput("energy_t1", "E", 3, es), "E"))
	require.NoError(t, driver.AddSensor(events.NewStreamOutput("power", "=M", 0, es), "=M"))
	return driver
}

func TestPollMeterActor(t *testing.T) {

	assert := assert.New(t)

	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	es := eventstream.NewEventStream()

	updates := make(chan domain.FloatSensorUpdateEvent, 10)
	sub := es.Subscribe(func(evt any) {
		if e, ok := evt.(domain.FloatSensorUpdateEvent); ok {
			updates <- e
		}
	})
	defer es.Unsubscribe(sub)

	driver := testMeterDriver(t, sem.NewSimulatedMeter(7, sem.DEFAULT_PASSWORD), es)
	props := actor.PropsFromProducer(func() actor.Actor { return NewMeterActor(driver, time.Second, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.PollMeterRequest{Reason: "test"}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.PollMeterResponse)
	assert.False(resp.HasResponseError())
	assert.False(resp.Dropped)
	require.NotNil(t, resp.Report)
	assert.Equal(2, resp.Report.Updated())

	first := <-updates
	assert.Equal("energy_t1", first.SensorId())
	assert.InDelta(1234.567, first.Value, 0.0001)
	second := <-updates
	assert.Equal("power", second.SensorId())
	assert.Equal(1230.0, second.Value)

	result, err = context.RequestFuture(pid, domain.GetLatestReadingsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	latest := result.(domain.GetLatestReadingsResponse)
	assert.Equal(7, latest.Address)
	assert.Equal(sem.Authenticated.String(), latest.Session)
	assert.Len(latest.Readings, 2)
	assert.NotNil(latest.LastReport)

	result, err = context.RequestFuture(pid, domain.GetMeterInfoRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Equal([]string{"E", "=M"}, result.(domain.GetMeterInfoResponse).Commands)

	context.Stop(pid)
	as.Shutdown()
}

func TestPollMeterActorDropsOverlappingPoll(t *testing.T) {

	assert := assert.New(t)

	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	es := eventstream.NewEventStream()

	// every exchange stalls, so the first cycle is still running when the second request arrives
	meter := sem.NewSimulatedMeter(7, sem.DEFAULT_PASSWORD).Stall(50 * time.Millisecond)
	driver := testMeterDriver(t, meter, es)
	props := actor.PropsFromProducer(func() actor.Actor { return NewMeterActor(driver, 2*time.Second, logger) })
	pid := context.Spawn(props)

	first := context.RequestFuture(pid, domain.PollMeterRequest{Reason: "tick"}, 5*time.Second)
	time.Sleep(10 * time.Millisecond)
	second := context.RequestFuture(pid, domain.PollMeterRequest{Reason: "tick"}, 5*time.Second)

	result, err := second.Result()
	require.NoError(t, err)
	dropped := result.(domain.PollMeterResponse)
	assert.True(dropped.Dropped)
	assert.ErrorIs(dropped.GetResponseError(), sem.ErrCycleInProgress)

	result, err = first.Result()
	require.NoError(t, err)
	done := result.(domain.PollMeterResponse)
	assert.False(done.Dropped)
	assert.NoError(done.GetResponseError())

	context.Stop(pid)
	as.Shutdown()
}

func TestPollMeterActorCycleBudget(t *testing.T) {

	assert := assert.New(t)

	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root
	es := eventstream.NewEventStream()

	meter := sem.NewSimulatedMeter(7, sem.DEFAULT_PASSWORD).Stall(80 * time.Millisecond)
	driver := testMeterDriver(t, meter, es)
	props := actor.PropsFromProducer(func() actor.Actor { return NewMeterActor(driver, 120*time.Millisecond, logger) })
	pid := context.Spawn(props)

	result, err := context.RequestFuture(pid, domain.PollMeterRequest{Reason: "tick"}, 5*time.Second).Result()
	require.NoError(t, err)
	resp := result.(domain.PollMeterResponse)
	require.NotNil(t, resp.Report)
	// the budget runs out after login and the first sensor
	assert.NotEmpty(resp.Report.Skipped)

	context.Stop(pid)
	as.Shutdown()
}
