package events

import (
	"time"

	. "github.com/berfenger/sem2mqtt/internal/core/domain"
	"github.com/berfenger/sem2mqtt/pkg/sem"

	"github.com/asynkron/protoactor-go/eventstream"
)

// StreamOutput publishes every value the driver applies for one sensor as a
// FloatSensorUpdateEvent on the event stream.
type StreamOutput struct {
	id       string
	command  string
	decimals uint
	stream   *eventstream.EventStream
}

func NewStreamOutput(id string, command string, decimals uint, stream *eventstream.EventStream) *StreamOutput {
	return &StreamOutput{
		id:       id,
		command:  command,
		decimals: decimals,
		stream:   stream,
	}
}

func (o *StreamOutput) Name() string {
	return o.id
}

func (o *StreamOutput) Publish(value float64) {
	o.stream.Publish(FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: o.id,
		},
		Value:    value,
		Decimals: o.decimals,
		Command:  o.command,
		Time:     time.Now(),
	})
}

var _ sem.Output = (*StreamOutput)(nil)

func PollReportToUpdateEvents(report *sem.PollReport, cycleErr error) []any {
	var events []any

	// Meter link state
	events = append(events, MeterConnectedUpdateEvent(cycleErr == nil && report != nil && report.LinkErr == nil))

	if report == nil {
		return events
	}

	// Poll cycle duration
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_LAST_CYCLE_DURATION,
		},
		Value:    float64(report.Duration.Milliseconds()),
		Decimals: 0,
		Time:     report.Started,
	})
	// Updated sensors
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_SENSORS_UPDATED,
		},
		Value:    float64(report.Updated()),
		Decimals: 0,
		Time:     report.Started,
	})

	return events
}

func MeterConnectedUpdateEvent(connected bool) any {
	return BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_METER_CONNECTED,
		},
		Value: connected,
	}
}
