package protocols

import (
	"bufio"
	"io"

	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/internal/protocols/sinocastel"
	"github.com/404minds/obd-receiver/internal/store"
	"github.com/404minds/obd-receiver/internal/types"
)

var logger = configuredLogger.Logger

type DeviceProtocol interface {
	GetDeviceType() types.DeviceType
	SetDeviceType(types.DeviceType)
	GetProtocolType() types.DeviceProtocolType
	GetDeviceID() string
	Login(*bufio.Reader) ([]byte, int, error)
	ConsumeStream(*bufio.Reader, io.Writer, store.Store) error
}

// Options carries receiver-wide settings into newly made protocols.
type Options struct {
	SessionID  string
	Source     string
	Sinocastel sinocastel.SinocastelProtocol
}

func MakeProtocolForType(t types.DeviceProtocolType, opts Options) DeviceProtocol {
	switch t {
	case types.DeviceProtocolType_SINOCASTEL_OBD:
		p := opts.Sinocastel
		p.SessionID = opts.SessionID
		p.Source = opts.Source
		return &p
	default:
		logger.Sugar().Info("MakeProtocolForType: ", t)
		return nil
	}
}

func GetDeviceTypesForProtocol(t types.DeviceProtocolType) []types.DeviceType {
	switch t {
	case types.DeviceProtocolType_SINOCASTEL_OBD:
		return []types.DeviceType{types.DeviceType_SINOCASTEL}
	default:
		return []types.DeviceType{}
	}
}
