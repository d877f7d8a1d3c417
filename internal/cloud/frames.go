package cloud

import "encoding/json"

// Inbound frame commands pushed by the cloud.
const (
	// FrameState carries a (possibly partial) device state update.
	FrameState = "EVENT_APO_STATE"

	// FrameDeviceList enumerates the ovens on the account. Sent after
	// authentication and whenever the device set changes.
	FrameDeviceList = "EVENT_APO_WIFI_LIST"

	// FrameResponse acknowledges or rejects an outbound command,
	// correlated by request id.
	FrameResponse = "RESPONSE"
)

// Response statuses.
const (
	responseOK    = "ok"
	responseError = "error"
)

// Frame is the envelope shared by all cloud messages.
type Frame struct {
	// Command names the frame type (EVENT_APO_STATE, CMD_APO_START, ...).
	Command string `json:"command"`

	// RequestID correlates commands with their RESPONSE frames.
	// Empty on unsolicited pushes.
	RequestID string `json:"requestId,omitempty"`

	// Payload is the frame body, left raw for the consumer to decode.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DeviceInfo is one entry of a FrameDeviceList payload.
type DeviceInfo struct {
	// CookerID is the cloud's unique device identifier.
	CookerID string `json:"cookerId"`

	// Type is the hardware version string ("oven_v1", "oven_v2").
	Type string `json:"type"`

	// Name is the user-assigned device name, when set.
	Name string `json:"name,omitempty"`
}

// responseBody is the payload of a FrameResponse.
type responseBody struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// outboundFrame is a command envelope sent to the cloud.
type outboundFrame struct {
	Command   string `json:"command"`
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// ParseDeviceList decodes a FrameDeviceList payload.
func ParseDeviceList(payload json.RawMessage) ([]DeviceInfo, error) {
	var devices []DeviceInfo
	if err := json.Unmarshal(payload, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}
