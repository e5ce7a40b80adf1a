package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types exchanged over a gateway connection.
const (
	TypeConnection    = "connection"
	TypeAuth          = "auth"
	TypeAuthSuccess   = "auth_success"
	TypeDeviceCommand = "device_command"
	TypeDeviceUpdate  = "device_update"
	TypeTelemetry     = "telemetry"
	TypeAlert         = "alert"
	TypeSubscribe     = "subscribe"
	TypePing          = "ping"
	TypePong          = "pong"
	TypeError         = "error"
)

var knownTypes = map[string]bool{
	TypeConnection:    true,
	TypeAuth:          true,
	TypeAuthSuccess:   true,
	TypeDeviceCommand: true,
	TypeDeviceUpdate:  true,
	TypeTelemetry:     true,
	TypeAlert:         true,
	TypeSubscribe:     true,
	TypePing:          true,
	TypePong:          true,
	TypeError:         true,
}

// ErrUnknownType is returned by Decode when the type discriminator is
// missing or not one of the defined message types. The session answers
// these with an error envelope instead of closing the connection.
type ErrUnknownType struct {
	Type string
}

func (e *ErrUnknownType) Error() string {
	if e.Type == "" {
		return "message has no type"
	}
	return fmt.Sprintf("unknown message type %q", e.Type)
}

// Envelope is the wire message unit. Data stays raw so the codec does
// not need to know every payload shape; typed payloads are decoded by
// the component that cares.
type Envelope struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"deviceId,omitempty"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// New builds an envelope with the given payload and stamps it with the
// current UTC time.
func New(msgType, deviceID string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return Envelope{
		Type:      msgType,
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: Now(),
	}, nil
}

// Encode serializes an envelope to a JSON text frame.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a text frame into an envelope. Malformed JSON and
// unknown types are both reported as errors; callers distinguish the
// latter with errors.As on *ErrUnknownType.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if !knownTypes[env.Type] {
		return Envelope{}, &ErrUnknownType{Type: env.Type}
	}
	return env, nil
}

// DecodeData unmarshals the envelope payload into dst.
func DecodeData(env Envelope, dst interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s envelope has no data", env.Type)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", env.Type, err)
	}
	return nil
}

// Now returns the timestamp format every producer stamps envelopes with.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
