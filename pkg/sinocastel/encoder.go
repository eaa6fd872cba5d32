package sinocastel

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/404minds/obd-receiver/internal/crc"
)

// PacketBuilder assembles frames the way a device does. It backs the device
// simulator and the decoder tests.
type PacketBuilder struct {
	Head       Marker
	Version    uint8
	DeviceID   string
	ProtocolID uint16
	Tail       Marker
}

func NewPacketBuilder(deviceID string) PacketBuilder {
	return PacketBuilder{
		Head:       HeadMarker,
		Version:    0x04,
		DeviceID:   deviceID,
		ProtocolID: ProtocolLogin,
		Tail:       TailMarker,
	}
}

// Build wraps payload into a frame with a correct length and CRC.
func (b PacketBuilder) Build(payload []byte) []byte {
	length := PayloadOffset + len(payload) + trailerSize

	var buf bytes.Buffer
	buf.Write(b.Head[:])
	_ = binary.Write(&buf, binary.LittleEndian, uint16(length))
	buf.WriteByte(b.Version)
	buf.Write(padRight(b.DeviceID, deviceIDSize))
	_ = binary.Write(&buf, binary.LittleEndian, b.ProtocolID)
	buf.Write(payload)

	_ = binary.Write(&buf, binary.LittleEndian, crc.CrcSinocastel(buf.Bytes()))
	buf.Write(b.Tail[:])
	return buf.Bytes()
}

type DiagnosticsFields struct {
	ProtocolCode   uint8
	VoltageRaw     uint8
	NetworkCode    uint8
	HardwareCode   uint8
	SignalStrength uint8
	BER            uint8
	StatusFlags    uint16
}

type GpsFields struct {
	Time       time.Time
	Latitude   float64 // signed degrees, negative is south
	Longitude  float64 // signed degrees, negative is west
	SpeedCmS   uint16
	Heading    float64 // degrees
	Quality    FixQuality
	Satellites uint8
}

type LoginFields struct {
	LastAccOn       time.Time
	UTCTime         time.Time
	MileageMeters   uint32
	TripMeters      uint32
	TotalFuel       uint32
	CurrentFuel     uint16
	VState          uint32
	Diagnostics     DiagnosticsFields
	Fixes           []GpsFields
	SoftwareVersion string
	HardwareVersion string
	NewParameters   []uint16
}

func EncodeLoginPayload(f LoginFields) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	_ = binary.Write(&buf, le, TimestampToProtocol(f.LastAccOn))
	_ = binary.Write(&buf, le, TimestampToProtocol(f.UTCTime))
	_ = binary.Write(&buf, le, f.MileageMeters)
	_ = binary.Write(&buf, le, f.TripMeters)
	_ = binary.Write(&buf, le, f.TotalFuel)
	_ = binary.Write(&buf, le, f.CurrentFuel)
	_ = binary.Write(&buf, le, f.VState)

	d := f.Diagnostics
	buf.Write([]byte{d.ProtocolCode, d.VoltageRaw, d.NetworkCode, d.HardwareCode, d.SignalStrength, d.BER})
	_ = binary.Write(&buf, le, d.StatusFlags)

	buf.WriteByte(uint8(len(f.Fixes)))
	for _, fix := range f.Fixes {
		buf.Write(EncodeGpsFix(fix))
	}

	buf.Write(encodeVersion(f.SoftwareVersion))
	buf.Write(encodeVersion(f.HardwareVersion))

	_ = binary.Write(&buf, le, uint16(len(f.NewParameters)))
	for _, id := range f.NewParameters {
		_ = binary.Write(&buf, le, id)
	}
	return buf.Bytes()
}

func EncodeGpsFix(f GpsFields) []byte {
	var buf bytes.Buffer
	t := f.Time.UTC()
	buf.Write([]byte{
		byte(t.Day()), byte(t.Month()), byte(t.Year() % 100),
		byte(t.Hour()), byte(t.Minute()), byte(t.Second()),
	})

	var flags uint8
	if f.Longitude >= 0 {
		flags |= gpsFlagEast
	}
	if f.Latitude >= 0 {
		flags |= gpsFlagNorth
	}
	flags |= (uint8(f.Quality) << gpsFlagQualityBits) & gpsFlagQualityMask
	flags |= f.Satellites << gpsFlagSatBits

	_ = binary.Write(&buf, binary.LittleEndian, uint32(math.Round(math.Abs(f.Latitude)*coordinateScale)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(math.Round(math.Abs(f.Longitude)*coordinateScale)))
	_ = binary.Write(&buf, binary.LittleEndian, f.SpeedCmS)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(math.Round(f.Heading*10)))
	buf.WriteByte(flags)
	return buf.Bytes()
}

// encodeVersion pads short versions to the 20-byte field. Longer ones are
// written whole with a NUL terminator, as the 218LSA firmware does.
func encodeVersion(s string) []byte {
	if len(s) < versionFieldSize {
		return padRight(s, versionFieldSize)
	}
	return append([]byte(s), 0x00)
}

func padRight(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}
