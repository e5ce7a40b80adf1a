package protocol

// ConnectionData is sent by the server as soon as the transport opens.
type ConnectionData struct {
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
	Status   string `json:"status"`
}

// AuthData is sent by a client to authenticate its session.
type AuthData struct {
	Token string `json:"token,omitempty"`
}

// AuthSuccessData acknowledges a successful auth handshake.
type AuthSuccessData struct {
	ClientID string `json:"clientId"`
	Status   string `json:"status"`
}

// TelemetryData is one sensor reading. Pointer fields stay nil when the
// sample does not carry that metric.
type TelemetryData struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	Power       *float64 `json:"power,omitempty"`
	Voltage     *float64 `json:"voltage,omitempty"`
	Current     *float64 `json:"current,omitempty"`
	CO2         *float64 `json:"co2,omitempty"`
	Light       *float64 `json:"light,omitempty"`
	Noise       *float64 `json:"noise,omitempty"`
	Timestamp   string   `json:"timestamp"`
}

// AlertData describes one alert event.
type AlertData struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	DeviceID  string `json:"deviceId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Alert severities, lowest to highest.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// CommandData is the payload of an inbound device_command.
type CommandData struct {
	Command    string                 `json:"command"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// DeviceUpdateData echoes an executed command back to every session.
type DeviceUpdateData struct {
	Command   string `json:"command"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// SubscribeData carries the topic a client wants to receive.
type SubscribeData struct {
	Topic string `json:"topic"`
}

// PingData and PongData carry liveness probe timestamps.
type PingData struct {
	Timestamp string `json:"timestamp"`
}

type PongData struct {
	Timestamp string `json:"timestamp"`
}

// ErrorData describes a protocol-level failure back to the sender.
type ErrorData struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Topic returns the subscription topic an envelope belongs to, or ""
// for message types that are never filtered.
func Topic(msgType string) string {
	switch msgType {
	case TypeTelemetry:
		return "telemetry"
	case TypeAlert:
		return "alerts"
	default:
		return ""
	}
}
