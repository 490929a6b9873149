package domain

import (
	"time"

	"github.com/berfenger/sem2mqtt/pkg/sem"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_METER        = "meter"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// PollTick is fired by the poll scheduler at every poll interval.
type PollTick struct {
	Time time.Time
}

type PollMeterRequest struct {
	ActorRequestMixIn
	Reason string
}

type PollMeterResponse struct {
	ActorResponseMixIn
	Report *sem.PollReport
	// Dropped is set when the request arrived while a cycle was in flight.
	Dropped bool
}

type GetLatestReadingsRequest struct {
	ActorRequestMixIn
}

type GetLatestReadingsResponse struct {
	ActorResponseMixIn
	Address    int
	Session    string
	Readings   []sem.Reading
	LastReport *sem.PollReport
}

type GetMeterInfoRequest struct {
	ActorRequestMixIn
}

type GetMeterInfoResponse struct {
	ActorResponseMixIn
	Address  int
	Commands []string
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
