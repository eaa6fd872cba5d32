package protocols

import (
	"testing"

	"github.com/404minds/obd-receiver/internal/protocols/sinocastel"
	"github.com/404minds/obd-receiver/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestMakeProtocolForType(t *testing.T) {
	opts := Options{
		SessionID:  "s-1",
		Source:     "ws",
		Sinocastel: sinocastel.SinocastelProtocol{RequireValidCrc: true},
	}

	p := MakeProtocolForType(types.DeviceProtocolType_SINOCASTEL_OBD, opts)
	if assert.IsType(t, &sinocastel.SinocastelProtocol{}, p) {
		s := p.(*sinocastel.SinocastelProtocol)
		assert.Equal(t, "s-1", s.SessionID)
		assert.Equal(t, "ws", s.Source)
		assert.True(t, s.RequireValidCrc, "receiver settings should be carried over")
	}

	other := MakeProtocolForType(types.DeviceProtocolType_SINOCASTEL_OBD, Options{SessionID: "s-2"})
	assert.NotSame(t, p, other, "every connection gets its own protocol state")

	assert.Nil(t, MakeProtocolForType(types.DeviceProtocolType_UNKNOWN, opts))
}

func TestGetDeviceTypesForProtocol(t *testing.T) {
	assert.Equal(t, []types.DeviceType{types.DeviceType_SINOCASTEL}, GetDeviceTypesForProtocol(types.DeviceProtocolType_SINOCASTEL_OBD))
	assert.Empty(t, GetDeviceTypesForProtocol(types.DeviceProtocolType_UNKNOWN))
}
