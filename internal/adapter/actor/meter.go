package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sem2mqtt/internal/core/domain"
	"github.com/berfenger/sem2mqtt/internal/core/port"
	"github.com/berfenger/sem2mqtt/internal/util/actorutil"
	"github.com/berfenger/sem2mqtt/pkg/sem"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	METER_ACTOR_ID = domain.ACTOR_ID_METER

	// extra time given to a cycle to unwind after its context deadline
	pollGracePeriod = 500 * time.Millisecond
)

// MeterActor owns the meter driver. Poll cycles run in a background task,
// one at a time.
type MeterActor struct {
	behavior    actor.Behavior
	stash       *actorutil.Stash
	driver      port.MeterDriver
	cycleBudget time.Duration
	lastReport  *sem.PollReport
	logger      *zap.Logger
}

type pollTaskResult struct {
	response domain.PollMeterResponse
	replyTo  *actor.PID
}

func NewMeterActor(driver port.MeterDriver, cycleBudget time.Duration, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		driver:      driver,
		cycleBudget: cycleBudget,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(METER_ACTOR_ID, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter@starting started")
		if err := state.driver.Open(); err != nil {
			state.logger.Error("could not open meter link", zap.Error(err))
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.driver.Close()
	default:
		state.logger.Debug("meter@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("meter@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      METER_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.PollMeterRequest:
		state.logger.Debug("meter@default: PollMeterRequest", zap.String("reason", msg.Reason))
		state.startPoll(ctx, actorutil.ForRequest(msg).ReplyTo(ctx))
		state.behavior.BecomeStacked(state.WaitingPoll)
	case domain.GetLatestReadingsRequest:
		actorutil.ForRequest(msg).Respond(ctx, state.latestReadings())
	case domain.GetMeterInfoRequest:
		actorutil.ForRequest(msg).Respond(ctx, state.meterInfo())
	case *actor.Stopping:
		state.driver.Close()
	case *actor.Restarting:
		state.driver.Close()
	default:
		state.logger.Debug("meter@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) WaitingPoll(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case pollTaskResult:
		state.logger.Debug("meter@WaitingPoll pollTaskResult")
		if msg.response.Report != nil {
			state.lastReport = msg.response.Report
		}
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.response)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.PollMeterRequest:
		state.logger.Info("poll request dropped, a cycle is in progress", zap.String("reason", msg.Reason))
		actorutil.ForRequest(msg).Respond(ctx, domain.PollMeterResponse{
			ActorResponseMixIn: domain.ErrorResponse(sem.ErrCycleInProgress),
			Dropped:            true,
		})
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      METER_ACTOR_ID,
			Healthy: true,
			State:   "polling",
		})
	case domain.GetLatestReadingsRequest:
		actorutil.ForRequest(msg).Respond(ctx, state.latestReadings())
	case *actor.Stopping:
		state.driver.Close()
	case *actor.Restarting:
		state.driver.Close()
	default:
		state.logger.Debug("meter@WaitingPoll stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterActor) startPoll(ctx actor.Context, replyTo *actor.PID) {
	budget := state.cycleBudget
	actorutil.NewBackgroundTaskNoError(ctx, func() *pollTaskResult {
		pollCtx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		report, err := state.driver.OnPollTick(pollCtx)
		return &pollTaskResult{
			response: domain.PollMeterResponse{
				ActorResponseMixIn: domain.ErrorResponse(err),
				Report:             report,
			},
			replyTo: replyTo,
		}
	}).WithTimeout(budget + pollGracePeriod).Recover(func(err error) pollTaskResult {
		return pollTaskResult{
			response: domain.PollMeterResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("poll cycle: %w", err)),
			},
			replyTo: replyTo,
		}
	}).PipeTo(ctx.Self())
}

func (state *MeterActor) latestReadings() domain.GetLatestReadingsResponse {
	return domain.GetLatestReadingsResponse{
		Address:    state.driver.Address(),
		Session:    state.driver.SessionState().String(),
		Readings:   state.driver.Latest(),
		LastReport: state.lastReport,
	}
}

func (state *MeterActor) meterInfo() domain.GetMeterInfoResponse {
	var commands []string
	for _, b := range state.driver.Bindings() {
		commands = append(commands, b.Command)
	}
	return domain.GetMeterInfoResponse{
		Address:  state.driver.Address(),
		Commands: commands,
	}
}
