package queue

import (
	"encoding/json"
	"fmt"
)

// Payload is the wire form of a dispatched job or event.  Exactly one of
// Job and Event is set; each Payload entry is an independently encoded
// JSON argument.
type Payload struct {
	Job     string   `json:"job,omitempty"`
	Event   string   `json:"event,omitempty"`
	Payload []string `json:"payload"`
}

// Validate checks the job/event exclusivity.
func (p Payload) Validate() error {
	switch {
	case p.Job == "" && p.Event == "":
		return fmt.Errorf("%w: neither job nor event set", ErrInvalidPayload)
	case p.Job != "" && p.Event != "":
		return fmt.Errorf("%w: both job %q and event %q set", ErrInvalidPayload, p.Job, p.Event)
	}
	return nil
}

// Encode validates p and marshals it.
func (p Payload) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Payload == nil {
		p.Payload = []string{}
	}
	return json.Marshal(p)
}

// DecodePayload parses and validates a message body.
func DecodePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}
