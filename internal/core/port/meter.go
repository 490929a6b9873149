package port

import (
	"context"

	"github.com/berfenger/sem2mqtt/pkg/sem"
)

// MeterDriver is what the meter actor needs from a meter driver.
type MeterDriver interface {
	Open() error
	Close() error
	OnPollTick(ctx context.Context) (*sem.PollReport, error)
	Latest() []sem.Reading
	Bindings() []sem.Binding
	SessionState() sem.SessionState
	Address() int
}

var _ MeterDriver = (*sem.Driver)(nil)
