// ABOUTME: Result envelope returned by every tool call on every transport
// ABOUTME: Serialises through a map so key order is sorted and output is deterministic

package tools

import (
	"encoding/json"
)

// Envelope is the uniform tool call result.
type Envelope struct {
	Success bool
	Error   string

	// PayloadKey names the field holding Payload on success.
	PayloadKey string
	Payload    any

	// Extra holds additional top-level fields, such as billing summaries.
	Extra map[string]any

	// Cost is omitted when nil.
	Cost      *float64
	Operation string
}

// MarshalJSON renders the envelope with sorted keys.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Map())
}

// Map returns the envelope as the map it serialises to.
func (e Envelope) Map() map[string]any {
	m := make(map[string]any, 5+len(e.Extra))
	for k, v := range e.Extra {
		m[k] = v
	}

	m["success"] = e.Success
	if e.Error != "" {
		m["error"] = e.Error
	}
	if e.Success && e.PayloadKey != "" {
		m[e.PayloadKey] = e.Payload
	}
	if e.Cost != nil {
		m["cost"] = *e.Cost
	}
	if e.Operation != "" {
		m["operation"] = e.Operation
	}
	return m
}

// JSON returns the serialised envelope. Marshalling a map of JSON-decoded
// values cannot fail, so errors collapse to a minimal failure envelope.
func (e Envelope) JSON() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"error":"Internal error","success":false}`)
	}
	return b
}

func unknownTool(name string) Envelope {
	return Envelope{Error: "Unknown tool: " + name}
}

func failure(operation, message string) Envelope {
	zero := 0.0
	return Envelope{Error: message, Cost: &zero, Operation: operation}
}

func success(operation, payloadKey string, payload any, cost float64) Envelope {
	return Envelope{
		Success:    true,
		PayloadKey: payloadKey,
		Payload:    payload,
		Cost:       &cost,
		Operation:  operation,
	}
}
