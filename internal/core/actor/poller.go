package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/sem2mqtt/internal/config"
	"github.com/berfenger/sem2mqtt/internal/core/domain"
	"github.com/berfenger/sem2mqtt/internal/core/events"
	. "github.com/berfenger/sem2mqtt/internal/util/actorutil"
	"github.com/berfenger/sem2mqtt/pkg/sem"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// PollerActor turns poll ticks and poll-now commands into meter cycles and
// publishes the diagnostics of every finished cycle.
type PollerActor struct {
	behavior actor.Behavior
	stash    *Stash

	meterActor  *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream

	// poll-now requesters waiting for the cycle in flight
	waiting      []*actor.PID
	lastTick     time.Time
	skippedTicks uint

	logger *zap.Logger
}

func NewPollerActor(config *config.Config, meterActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:      config,
		meterActor:  meterActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_POLLER, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@default started")
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   "idle",
		})
	case domain.PollTick:
		state.logger.Debug("poller@default tick", zap.Time("time", msg.Time))
		state.lastTick = msg.Time
		state.requestPoll(ctx, "tick")
	case domain.PollNowRequest:
		state.logger.Info("poll requested", zap.String("source", msg.Source))
		state.waiting = append(state.waiting, ForRequest(msg).ReplyTo(ctx))
		state.requestPoll(ctx, msg.Source)
	default:
		state.logger.Debug("poller@default: unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *PollerActor) WaitingPollReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PollMeterResponse:
		state.publishDiagnostics(msg)
		state.respondWaiting(ctx, msg)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.PollTick:
		state.skippedTicks++
		state.logger.Warn("poll tick skipped, previous cycle still running",
			zap.Time("time", msg.Time), zap.Uint("skipped", state.skippedTicks))
	case domain.PollNowRequest:
		// joins the cycle in flight
		state.waiting = append(state.waiting, ForRequest(msg).ReplyTo(ctx))
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   "polling",
		})
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) requestPoll(ctx actor.Context, reason string) {
	timeout := state.config.Meter.CycleBudget + 2*time.Second
	future := ctx.RequestFuture(state.meterActor, domain.PollMeterRequest{Reason: reason}, timeout)
	PipeToSelfWithRecover(ctx, future, func(err error) any {
		return domain.PollMeterResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
		}
	})
	state.behavior.BecomeStacked(state.WaitingPollReceive)
}

func (state *PollerActor) publishDiagnostics(resp domain.PollMeterResponse) {
	if resp.Dropped {
		return
	}
	if resp.HasResponseError() {
		state.logger.Warn("poll cycle failed", zap.Error(resp.GetResponseError()))
	} else if resp.Report != nil {
		state.logger.Info("poll cycle finished",
			zap.Int("updated", resp.Report.Updated()),
			zap.Int("skipped", len(resp.Report.Skipped)),
			zap.Duration("duration", resp.Report.Duration))
	}
	for _, ev := range events.PollReportToUpdateEvents(resp.Report, resp.GetResponseError()) {
		state.eventStream.Publish(ev)
	}
}

func (state *PollerActor) respondWaiting(ctx actor.Context, resp domain.PollMeterResponse) {
	pollNow := domain.PollNowResponse{
		ActorResponseMixIn: resp.ActorResponseMixIn,
	}
	if resp.Report != nil {
		pollNow.Updated = resp.Report.Updated()
		pollNow.Skipped = len(resp.Report.Skipped)
	}
	if resp.Dropped && pollNow.ResponseError == nil {
		pollNow.ResponseError = sem.ErrCycleInProgress
	}
	for _, pid := range state.waiting {
		if pid != nil {
			ctx.Send(pid, pollNow)
		}
	}
	state.waiting = nil
}
