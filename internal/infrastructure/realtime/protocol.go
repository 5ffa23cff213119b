package realtime

import "encoding/json"

// Envelope is what connected clients receive.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireEvent struct {
	Type       string          `json:"type"`
	Recipients []int64         `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}
