package sinocastel

import (
	"fmt"

	"github.com/404minds/obd-receiver/internal/crc"
)

// Decoder holds the device-model constants used while decoding. It keeps no
// per-packet state and is safe for concurrent use.
type Decoder struct {
	// VoltageBase is added to raw*0.1 when converting the supply voltage.
	VoltageBase float64
}

var DefaultDecoder = &Decoder{VoltageBase: DefaultVoltageBase}

// Decode decodes buf with the default decoder settings.
func Decode(buf []byte, cal OdometerCalibration) (*DecodedPacket, error) {
	return DefaultDecoder.Decode(buf, cal)
}

// Decode turns one complete frame into a DecodedPacket. The only error is
// *InvalidPacketError for buffers shorter than MinPacketSize; field level
// problems show up as absent fields or an Unparsed payload.
//
// The trailer is always read from the last four bytes of buf, however far
// payload decoding got.
func (d *Decoder) Decode(buf []byte, cal OdometerCalibration) (*DecodedPacket, error) {
	if len(buf) < MinPacketSize {
		return nil, &InvalidPacketError{Length: len(buf)}
	}

	c := NewCursor(buf)
	packet := &DecodedPacket{}

	// header
	head, _ := c.ReadBytes(headSize)
	copy(packet.Head[:], head)
	packet.Length, _ = c.ReadU16()
	packet.Version, _ = c.ReadU8()

	// identity
	packet.DeviceID, _ = c.ReadFixedASCII(deviceIDSize)

	// protocol
	protocolID, _ := c.ReadU16()
	packet.ProtocolID = Hex16(protocolID)

	trailerPos := len(buf) - trailerSize
	switch protocolID {
	case ProtocolLogin:
		payloadEnd := max(trailerPos, c.Pos())
		packet.Payload = d.DecodeLoginPayload(NewCursor(buf[c.Pos():payloadEnd]), cal)
	default:
		packet.Payload = &Unparsed{
			Unparsed:   true,
			ProtocolID: Hex16(protocolID),
			Offset:     c.Pos(),
			Reason:     fmt.Sprintf("payload for protocol %s not implemented", Hex16(protocolID)),
		}
	}

	// trailer
	c.Seek(trailerPos)
	checksum, _ := c.ReadU16()
	packet.Crc = Hex16(checksum)
	tail, _ := c.ReadBytes(2)
	copy(packet.Tail[:], tail)

	packet.CrcValid = crc.CrcSinocastel(buf[:trailerPos]) == checksum
	return packet, nil
}
