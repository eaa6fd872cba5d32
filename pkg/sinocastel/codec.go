package sinocastel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ProtocolEpoch is the origin of every timestamp field in the protocol.
var ProtocolEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

const TimeLayout = "2006-01-02 15:04:05"

// Timestamp marshals as "YYYY-MM-DD hh:mm:ss" in UTC.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimeLayout))
}

// TimestampFromProtocol converts seconds since ProtocolEpoch. Zero means the
// device has no value and yields nil.
func TimestampFromProtocol(raw uint32) *Timestamp {
	if raw == 0 {
		return nil
	}
	return &Timestamp{ProtocolEpoch.Add(time.Duration(raw) * time.Second)}
}

// TimestampToProtocol is the inverse of TimestampFromProtocol.
func TimestampToProtocol(t time.Time) uint32 {
	if t.IsZero() || !t.After(ProtocolEpoch) {
		return 0
	}
	return uint32(t.Sub(ProtocolEpoch) / time.Second)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func MetersToKm(meters uint32) float64 {
	return round2(float64(meters) / 1000)
}

func FuelToLiters(raw uint32) float64 {
	return round2(float64(raw) / 100)
}

// DefaultVoltageBase is added to raw*0.1 for the vehicle supply voltage.
const DefaultVoltageBase = 8.0

func VoltageFromRaw(raw uint8, base float64) float64 {
	return round1(float64(raw)*0.1 + base)
}

// SpeedToKmh converts a GPS speed in cm/s.
func SpeedToKmh(raw uint16) float64 {
	return round2(float64(raw) * 0.036)
}

func HeadingToDegrees(raw uint16) float64 {
	return round1(float64(raw) / 10)
}

var dropNonASCII = runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
}))

// asciiString drops undecodable bytes and everything from the first NUL on.
func asciiString(b []byte) string {
	if i := bytes.IndexByte(b, 0x00); i >= 0 {
		b = b[:i]
	}
	cleaned, _, err := transform.Bytes(dropNonASCII, b)
	if err != nil {
		return ""
	}
	return string(cleaned)
}

// VSTATE bits
const (
	VStateAccOn uint32 = 0x00040000
)

const VStateNormal = "No specific state detected"

var vehicleStateNames = []struct {
	mask uint32
	name string
}{
	{VStateAccOn, "ACC ON"},
}

// DecodeVehicleState returns the named flags set in raw. Bits without a name
// are ignored here; callers keep the raw value for them.
func DecodeVehicleState(raw uint32) []string {
	flags := []string{}
	for _, s := range vehicleStateNames {
		if raw&s.mask != 0 {
			flags = append(flags, s.name)
		}
	}
	return flags
}

func describeVehicleState(flags []string) string {
	if len(flags) == 0 {
		return VStateNormal
	}
	return strings.Join(flags, ", ")
}

var obdProtocolNames = map[uint8]string{
	0x07: "ISO9141",
}

var networkNames = map[uint8]string{
	0x01: "CDMA BC0",
}

var hardwareNames = map[uint8]string{
	0x05: "213GD",
	0x07: "SIM800L",
}

func obdProtocolName(code uint8) string {
	if name, ok := obdProtocolNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", code)
}

func networkName(code uint8) string {
	if name, ok := networkNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", code)
}

func hardwareName(code uint8) string {
	if name, ok := hardwareNames[code]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", code)
}

// Hex16 marshals as "0x%04x".
type Hex16 uint16

func (h Hex16) String() string {
	return fmt.Sprintf("0x%04x", uint16(h))
}

func (h Hex16) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// Hex32 marshals as "0x%08x".
type Hex32 uint32

func (h Hex32) String() string {
	return fmt.Sprintf("0x%08x", uint32(h))
}

func (h Hex32) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// Marker is a 2-byte head or tail marker, kept in wire order.
type Marker [2]byte

func (m Marker) String() string {
	return fmt.Sprintf("0x%02x%02x", m[0], m[1])
}

func (m Marker) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}
