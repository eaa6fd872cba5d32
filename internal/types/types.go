package types

import (
	"encoding/json"
	"time"

	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"google.golang.org/protobuf/types/known/structpb"
)

type DeviceType int32

const (
	DeviceType_UNKNOWN    DeviceType = 0
	DeviceType_SINOCASTEL DeviceType = 1
)

var DeviceType_name = map[DeviceType]string{
	DeviceType_UNKNOWN:    "UNKNOWN",
	DeviceType_SINOCASTEL: "SINOCASTEL",
}

func (d DeviceType) String() string {
	if name, ok := DeviceType_name[d]; ok {
		return name
	}
	return "UNKNOWN"
}

type DeviceProtocolType int32

const (
	DeviceProtocolType_UNKNOWN        DeviceProtocolType = 0
	DeviceProtocolType_SINOCASTEL_OBD DeviceProtocolType = 1
)

var DeviceProtocolType_name = map[DeviceProtocolType]string{
	DeviceProtocolType_UNKNOWN:        "UNKNOWN",
	DeviceProtocolType_SINOCASTEL_OBD: "SINOCASTEL_OBD",
}

func (p DeviceProtocolType) String() string {
	if name, ok := DeviceProtocolType_name[p]; ok {
		return name
	}
	return "UNKNOWN"
}

// DeviceStatus is one decoded frame on its way to a store.
type DeviceStatus struct {
	SessionID  string                    `json:"session_id"`
	DeviceID   string                    `json:"device_id"`
	DeviceType DeviceType                `json:"-"`
	Source     string                    `json:"source"`
	ReceivedAt time.Time                 `json:"received_at"`
	Raw        string                    `json:"raw"`
	Packet     *sinocastel.DecodedPacket `json:"packet"`
}

func (s DeviceStatus) MarshalJSON() ([]byte, error) {
	type alias DeviceStatus
	return json.Marshal(struct {
		alias
		DeviceType string `json:"device_type"`
	}{alias(s), s.DeviceType.String()})
}

// ToMap flattens the status through its JSON form, so every backend sees the
// same keys.
func (s DeviceStatus) ToMap() (map[string]interface{}, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s DeviceStatus) ToStruct() (*structpb.Struct, error) {
	m, err := s.ToMap()
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}
