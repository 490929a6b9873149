package sem

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type SkippedBinding struct {
	Command string
	Output  string
	Err     error
}

// PollReport summarises one poll cycle.
type PollReport struct {
	Started  time.Time
	Duration time.Duration
	Readings []Reading
	Skipped  []SkippedBinding
	// LinkErr is the first transport failure of the cycle, if any.
	LinkErr error
}

func (r *PollReport) Updated() int {
	if r == nil {
		return 0
	}
	return len(r.Readings)
}

// CommandScheduler issues the bound commands one at a time, waiting for each
// reply before the next request goes out.
type CommandScheduler struct {
	registry       *ValueRegistry
	commandTimeout time.Duration
	commandDelay   time.Duration
	logger         *zap.Logger
}

func NewCommandScheduler(registry *ValueRegistry, commandTimeout time.Duration, commandDelay time.Duration, logger *zap.Logger) *CommandScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandScheduler{
		registry:       registry,
		commandTimeout: commandTimeout,
		commandDelay:   commandDelay,
		logger:         logger,
	}
}

func (s *CommandScheduler) PollOnce(ctx context.Context, link Link, address int, password string) *PollReport {
	report := &PollReport{Started: time.Now()}
	defer func() {
		report.Duration = time.Since(report.Started)
	}()

	bindings := s.registry.Bindings()
	for i, b := range bindings {
		if i > 0 && !sleep(ctx, s.commandDelay) {
			s.skipRemaining(report, bindings[i:], ctx.Err())
			break
		}
		if err := ctx.Err(); err != nil {
			s.skipRemaining(report, bindings[i:], err)
			break
		}

		logger := s.logger.With(zap.String("command", b.Command), zap.String("sensor", b.Output.Name()))
		reading, err := s.exchange(ctx, link, address, password, b.Command)
		if err != nil {
			logger.Warn("sensor skipped", zap.Error(err))
			report.Skipped = append(report.Skipped, SkippedBinding{Command: b.Command, Output: b.Output.Name(), Err: err})
			if report.LinkErr == nil && IsLinkError(err) {
				report.LinkErr = err
			}
			continue
		}
		logger.Debug("sensor updated", zap.Float64("value", reading.Value))
		report.Readings = append(report.Readings, *reading)
	}
	return report
}

func (s *CommandScheduler) skipRemaining(report *PollReport, bindings []Binding, err error) {
	for _, b := range bindings {
		report.Skipped = append(report.Skipped, SkippedBinding{Command: b.Command, Output: b.Output.Name(), Err: err})
	}
	s.logger.Warn("poll cycle abandoned", zap.Int("remaining", len(bindings)), zap.Error(err))
}

func (s *CommandScheduler) exchange(ctx context.Context, link Link, address int, password string, command string) (*Reading, error) {
	frame, err := Encode(address, password+command)
	if err != nil {
		return nil, err
	}
	if err := link.Send(ctx, frame); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.commandTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrCommandTimeout
		}
		raw, err := link.Receive(ctx, remaining)
		if err != nil {
			return nil, err
		}
		reply, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		if !reply.IsReply() || reply.Address != address || reply.Echo() != command[0] {
			s.logger.Debug("discarding unrelated frame", zap.ByteString("frame", raw))
			continue
		}
		return s.registry.Apply(command, reply.Body)
	}
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
