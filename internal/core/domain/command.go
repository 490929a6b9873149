package domain

// MeterCommandRequest is a user command targeting the meter, coming from MQTT or HTTP.
type MeterCommandRequest interface {
	ActorRequest
	MeterCommand() string
}

type PollNowRequest struct {
	ActorRequestMixIn
	Source string
}

func (r PollNowRequest) MeterCommand() string {
	return BUTTON_ID_POLL_NOW
}

type PollNowResponse struct {
	ActorResponseMixIn
	Updated int
	Skipped int
}

// ensure interface compliance
var _ MeterCommandRequest = (*PollNowRequest)(nil)

// CommandForButton maps a pressed button id to its command, or nil if the id is unknown.
func CommandForButton(buttonId string, source string) MeterCommandRequest {
	switch buttonId {
	case BUTTON_ID_POLL_NOW:
		return PollNowRequest{Source: source}
	}
	return nil
}
