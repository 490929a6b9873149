package domain

import (
	"fmt"
	"time"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
	// Command is the meter command the value was read with, empty for derived values.
	Command string
	Time    time.Time
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}
