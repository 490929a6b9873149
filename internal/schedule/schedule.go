package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/sem2mqtt/internal/core/domain"

	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

const POLL_JOB_KEY = "sem_poll_tick"

// TickSink receives every poll tick fired by the schedule.
type TickSink func(tick domain.PollTick)

type pollTickJob struct {
	sink     TickSink
	interval time.Duration
}

func (j *pollTickJob) Execute(_ context.Context) error {
	j.sink(domain.PollTick{Time: time.Now()})
	return nil
}

func (j *pollTickJob) Description() string {
	return fmt.Sprintf("poll tick every %s", j.interval)
}

// PollSchedule fires poll ticks at a fixed interval.
type PollSchedule struct {
	scheduler quartz.Scheduler
	job       *pollTickJob
	logger    *zap.Logger
}

func NewPollSchedule(interval time.Duration, sink TickSink, logger *zap.Logger) (*PollSchedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid poll interval %s", interval)
	}
	return &PollSchedule{
		scheduler: quartz.NewStdScheduler(),
		job:       &pollTickJob{sink: sink, interval: interval},
		logger:    logger.With(zap.String("component", "schedule")),
	}, nil
}

func (s *PollSchedule) Start(ctx context.Context) error {
	s.scheduler.Start(ctx)
	jobDetail := quartz.NewJobDetail(s.job, quartz.NewJobKey(POLL_JOB_KEY))
	if err := s.scheduler.ScheduleJob(jobDetail, quartz.NewSimpleTrigger(s.job.interval)); err != nil {
		return err
	}
	s.logger.Info("poll schedule started", zap.Duration("interval", s.job.interval))
	return nil
}

func (s *PollSchedule) Stop(ctx context.Context) {
	s.scheduler.Stop()
	s.scheduler.Wait(ctx)
	s.logger.Info("poll schedule stopped")
}
