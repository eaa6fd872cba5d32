package sinocastel

import (
	"fmt"

	errs "github.com/404minds/obd-receiver/internal/errors"
)

// Frame layout, offsets from the start of the packet:
//
//	[0:2)        head marker
//	[2:4)        declared length
//	[4:5)        version
//	[5:25)       device id, NUL padded ASCII
//	[25:27)      protocol id
//	[27:len-4)   payload
//	[len-4:len-2) crc
//	[len-2:len)  tail marker
const (
	headSize       = 2
	headerSize     = headSize + 2 + 1
	deviceIDSize   = 20
	protocolIDSize = 2
	trailerSize    = 4

	PayloadOffset = headerSize + deviceIDSize + protocolIDSize
	MinPacketSize = 28
)

var (
	HeadMarker = Marker{0x40, 0x40}
	TailMarker = Marker{0x0d, 0x0a}
)

type Header struct {
	Head    Marker `json:"protocol_head"`
	Length  uint16 `json:"protocol_length"`
	Version uint8  `json:"protocol_version"`
}

// Payload is either *LoginPayload or *Unparsed.
type Payload interface {
	isPayload()
}

// Unparsed stands in for payloads of protocol ids the decoder does not know.
type Unparsed struct {
	Unparsed   bool   `json:"unparsed"`
	ProtocolID Hex16  `json:"protocol_id"`
	Offset     int    `json:"offset"`
	Reason     string `json:"reason"`
}

func (*Unparsed) isPayload() {}

type DecodedPacket struct {
	Header
	DeviceID   string  `json:"device_id"`
	ProtocolID Hex16   `json:"protocol_id"`
	Payload    Payload `json:"payload"`
	Crc        Hex16   `json:"crc"`
	CrcValid   bool    `json:"crc_valid"`
	Tail       Marker  `json:"protocol_tail"`
}

// Login returns the payload when the packet is a decoded login/status packet.
func (p *DecodedPacket) Login() (*LoginPayload, bool) {
	login, ok := p.Payload.(*LoginPayload)
	return login, ok
}

// InvalidPacketError is returned for buffers too short to hold a frame.
type InvalidPacketError struct {
	Length int
}

func (e *InvalidPacketError) Error() string {
	return fmt.Sprintf("%s: got %d bytes, need at least %d", errs.ErrInvalidPacket, e.Length, MinPacketSize)
}

func (e *InvalidPacketError) Unwrap() error {
	return errs.ErrInvalidPacket
}

// PeekDeviceID reads the device id of a frame without decoding the rest. It
// returns "" for buffers too short to carry one.
func PeekDeviceID(buf []byte) string {
	if len(buf) < PayloadOffset {
		return ""
	}
	id, _ := NewCursor(buf[headerSize : headerSize+deviceIDSize]).ReadFixedASCII(deviceIDSize)
	return id
}
