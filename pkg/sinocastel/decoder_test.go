package sinocastel

import (
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	errs "github.com/404minds/obd-receiver/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// login packet captured from a 218LSA-B unit
const capturedLogin = "40408600043231384c5341423230323530303030303200000010013bd6776861e3776832821500c3e00000983e0000950200020400032b2d441000811c011007191125227c3ece046466410900000e06bc42342e332e392e325f42524c20323032342d30312d323520303100442d3231384c53412d4220204844432d33365600000014360d0a"

func capturedPacket(t *testing.T) []byte {
	t.Helper()
	buf, err := hex.DecodeString(capturedLogin)
	require.NoError(t, err)
	return buf
}

func sampleLogin() LoginFields {
	return LoginFields{
		LastAccOn:     time.Date(2025, 7, 16, 16, 41, 31, 0, time.UTC),
		UTCTime:       time.Date(2025, 7, 16, 17, 37, 37, 0, time.UTC),
		MileageMeters: 15727,
		TripMeters:    2350,
		TotalFuel:     16024,
		CurrentFuel:   661,
		VState:        VStateAccOn,
		Diagnostics: DiagnosticsFields{
			ProtocolCode:   0x07,
			VoltageRaw:     0x2b,
			NetworkCode:    0x01,
			HardwareCode:   0x05,
			SignalStrength: 21,
			BER:            2,
			StatusFlags:    statusOBDConnected | statusRPMPresent,
		},
		Fixes: []GpsFields{{
			Time:       time.Date(2025, 7, 16, 17, 37, 34, 0, time.UTC),
			Latitude:   -22.39591,
			Longitude:  -43.13361,
			SpeedCmS:   1000,
			Heading:    155,
			Quality:    Fix3D,
			Satellites: 11,
		}},
		SoftwareVersion: "B4.3.9.2_BRL 2024-01-25 01",
		HardwareVersion: "D-213GD",
		NewParameters:   []uint16{0x1801, 0x1802},
	}
}

func TestDecodeCapturedLogin(t *testing.T) {
	buf := capturedPacket(t)
	cal := OdometerCalibration{OffsetKm: 105826.41}

	packet, err := Decode(buf, cal)
	require.NoError(t, err)

	assert.Equal(t, HeadMarker, packet.Head)
	assert.Equal(t, uint16(134), packet.Length)
	assert.Equal(t, uint8(4), packet.Version)
	assert.Equal(t, "218LSAB2025000002", packet.DeviceID)
	assert.Equal(t, Hex16(ProtocolLogin), packet.ProtocolID)
	assert.Equal(t, Hex16(0x3614), packet.Crc)
	assert.True(t, packet.CrcValid, "captured crc should verify")
	assert.Equal(t, TailMarker, packet.Tail)

	login, ok := packet.Login()
	require.True(t, ok, "protocol 0x0110 should decode as login")

	assert.False(t, login.Incomplete)
	assert.Empty(t, login.FirstMissingField)
	if assert.NotNil(t, login.UTCTime) {
		assert.Equal(t, "2055-07-16 17:37:37", login.UTCTime.Format(TimeLayout))
	}
	if assert.NotNil(t, login.LastAccOnTime) {
		assert.Equal(t, "2055-07-16 16:41:31", login.LastAccOnTime.Format(TimeLayout))
	}
	assert.Equal(t, uint32(1409586), *login.DeviceMileageMeters)
	assert.Equal(t, 1409.59, *login.DeviceMileageKm)
	assert.Equal(t, 107236.0, *login.VehicleOdometerKm)
	assert.Equal(t, uint32(57539), *login.CurrentTripMileage)
	assert.Equal(t, uint32(16024), *login.TotalFuel)
	assert.Equal(t, 160.24, *login.TotalFuelLiters)
	assert.Equal(t, uint16(661), *login.CurrentFuel)
	assert.Equal(t, 6.61, *login.CurrentFuelLiters)
	assert.Equal(t, Hex32(0x00040200), *login.VStateRaw)
	assert.Equal(t, "ACC ON", *login.VStateDecoded)

	if assert.NotNil(t, login.Reserved) {
		d := login.Reserved
		assert.Equal(t, "unknown(3)", d.Protocol)
		assert.Equal(t, 12.3, d.Voltage)
		assert.Equal(t, "unknown(45)", d.Network)
		assert.Equal(t, "code_68", d.HardwareCode)
		assert.Equal(t, uint8(16), d.SignalStrength)
		assert.Equal(t, uint8(0), d.BER)
		assert.Equal(t, Hex16(0x1c81), d.StatusFlagsRaw)
		assert.Equal(t, StatusFlags{OBDConnected: true}, d.StatusFlags)
	}

	assert.Equal(t, uint8(1), *login.GpsCount)
	if assert.Len(t, login.GpsInfo, 1) {
		assert.Equal(t, "16/07/2025", login.GpsInfo[0].Date)
		assert.InDelta(t, -22.39591, login.GpsInfo[0].Latitude, 1e-6)
	}
	assert.Equal(t, "B4.3.9.2_BRL 2024-01-25 01", *login.SoftwareVersion)
	assert.Equal(t, "D-218LSA-B  HDC-36V", *login.HardwareVersion)
	assert.Equal(t, uint16(0), *login.NewParameterCount)
	assert.Empty(t, login.NewParameters)
}

func TestDecodeOdometerScenario(t *testing.T) {
	payload := EncodeLoginPayload(sampleLogin())
	buf := NewPacketBuilder("213GDP2018021343").Build(payload)
	// declared length disagrees with the buffer; decoding follows the buffer
	buf[2], buf[3] = 0x86, 0x00

	cal := OdometerCalibration{OffsetKm: 105826.41}
	packet, err := Decode(buf, cal)
	require.NoError(t, err)

	assert.Equal(t, "213GDP2018021343", packet.DeviceID)
	assert.Equal(t, uint16(0x86), packet.Length)
	assert.False(t, packet.CrcValid, "patched length should break the crc")

	login, ok := packet.Login()
	require.True(t, ok)
	assert.Equal(t, uint32(15727), *login.DeviceMileageMeters)
	assert.Equal(t, 15.73, *login.DeviceMileageKm)
	assert.Equal(t, 105842.14, *login.VehicleOdometerKm)
	assert.Equal(t, []Hex16{0x1801, 0x1802}, login.NewParameters)
}

func TestDecodeZeroOffset(t *testing.T) {
	buf := NewPacketBuilder("213GDP2018021343").Build(EncodeLoginPayload(sampleLogin()))

	packet, err := Decode(buf, OdometerCalibration{})
	require.NoError(t, err)
	login, _ := packet.Login()
	assert.Equal(t, *login.DeviceMileageKm, *login.VehicleOdometerKm, "zero offset should leave the device mileage")
}

func TestOdometerProperty(t *testing.T) {
	offsets := []float64{-250.5, 0, 0.01, 1234.56, 105826.41, 999999.99}
	mileages := []uint32{0, 1, 999, 15727, 1409586, 4294967295}

	for _, offset := range offsets {
		cal := OdometerCalibration{OffsetKm: offset}
		for _, m := range mileages {
			got := cal.VehicleOdometerKm(m)
			assert.InDelta(t, offset+float64(m)/1000, got, 0.005+1e-9, "offset %v mileage %d", offset, m)
			assert.Equal(t, got, round2(got), "result should carry at most 2 decimals")
		}
	}
}

func TestNewOdometerCalibration(t *testing.T) {
	cal := NewOdometerCalibration(105842.14, 15.73)
	assert.Equal(t, 105826.41, cal.OffsetKm)
}

func TestDecodeRejectsShortBuffers(t *testing.T) {
	for _, n := range []int{0, 1, 4, MinPacketSize - 1} {
		packet, err := Decode(make([]byte, n), OdometerCalibration{})
		assert.Nil(t, packet)
		assert.ErrorIs(t, err, errs.ErrInvalidPacket, "length %d", n)

		var invalid *InvalidPacketError
		if assert.ErrorAs(t, err, &invalid) {
			assert.Equal(t, n, invalid.Length)
		}
	}
}

func TestDecodeMinimalPacket(t *testing.T) {
	buf := make([]byte, MinPacketSize)
	copy(buf, HeadMarker[:])
	buf[25], buf[26] = 0x10, 0x01

	packet, err := Decode(buf, OdometerCalibration{})
	require.NoError(t, err)

	login, ok := packet.Login()
	require.True(t, ok)
	assert.True(t, login.Incomplete)
	assert.Equal(t, "last_accon_time", login.FirstMissingField)
	assert.Nil(t, login.DeviceMileageMeters)
}

func TestDecodeTailResync(t *testing.T) {
	full := NewPacketBuilder("213GDP2018021343").Build(EncodeLoginPayload(sampleLogin()))
	trailer := full[len(full)-trailerSize:]

	// keep 10 payload bytes and the original trailer
	buf := append([]byte{}, full[:PayloadOffset+10]...)
	buf = append(buf, trailer...)

	packet, err := Decode(buf, OdometerCalibration{})
	require.NoError(t, err)

	assert.Equal(t, TailMarker, packet.Tail, "tail should come from the last two bytes")
	assert.Equal(t, Hex16(uint16(trailer[0])|uint16(trailer[1])<<8), packet.Crc)
	assert.False(t, packet.CrcValid)

	login, ok := packet.Login()
	require.True(t, ok)
	assert.True(t, login.Incomplete)
	assert.Equal(t, "device_reported_mileage_meters", login.FirstMissingField)
	assert.NotNil(t, login.UTCTime, "fields before the cut should survive")
	assert.Nil(t, login.DeviceMileageMeters)
	assert.Nil(t, login.SoftwareVersion, "fields after the cut should be absent")
}

func TestDecodeIncompleteGps(t *testing.T) {
	payload := EncodeLoginPayload(sampleLogin())
	// cut inside the first gps record
	buf := NewPacketBuilder("213GDP2018021343").Build(payload[:40])

	packet, err := Decode(buf, OdometerCalibration{})
	require.NoError(t, err)
	assert.True(t, packet.CrcValid)

	login, _ := packet.Login()
	assert.True(t, login.Incomplete)
	assert.Equal(t, "gps_info[0]", login.FirstMissingField)
	assert.Equal(t, uint8(1), *login.GpsCount)
	assert.Empty(t, login.GpsInfo)
	assert.NotNil(t, login.Reserved)
	assert.Nil(t, login.SoftwareVersion)
	assert.Nil(t, login.NewParameterCount)
}

func TestDecodeUnknownProtocol(t *testing.T) {
	b := NewPacketBuilder("213GDP2018021343")
	b.ProtocolID = 0x9999
	buf := b.Build([]byte{0x01, 0x02, 0x03})

	packet, err := Decode(buf, OdometerCalibration{})
	require.NoError(t, err)

	assert.Equal(t, Hex16(0x9999), packet.ProtocolID)
	assert.True(t, packet.CrcValid)
	assert.Equal(t, TailMarker, packet.Tail)

	_, ok := packet.Login()
	assert.False(t, ok)
	unparsed, ok := packet.Payload.(*Unparsed)
	if assert.True(t, ok, "unknown protocol should yield an unparsed payload") {
		assert.True(t, unparsed.Unparsed)
		assert.Equal(t, PayloadOffset, unparsed.Offset)
		assert.Equal(t, "payload for protocol 0x9999 not implemented", unparsed.Reason)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleLogin()
	buf := NewPacketBuilder("213GDP2018021343").Build(EncodeLoginPayload(in))

	packet, err := Decode(buf, OdometerCalibration{OffsetKm: 100})
	require.NoError(t, err)
	assert.True(t, packet.CrcValid, "builder frames should carry a valid crc")
	assert.Equal(t, uint16(len(buf)), packet.Length)

	login, ok := packet.Login()
	require.True(t, ok)
	assert.False(t, login.Incomplete)

	assert.Equal(t, in.UTCTime, login.UTCTime.Time)
	assert.Equal(t, in.LastAccOn, login.LastAccOnTime.Time)
	assert.Equal(t, 15.73, *login.DeviceMileageKm)
	assert.Equal(t, 115.73, *login.VehicleOdometerKm)
	assert.Equal(t, 2.35, *login.CurrentTripMileageKm)
	assert.Equal(t, 160.24, *login.TotalFuelLiters)
	assert.Equal(t, 6.61, *login.CurrentFuelLiters)
	assert.Equal(t, []string{"ACC ON"}, login.VStateFlags)

	d := login.Reserved
	assert.Equal(t, "ISO9141", d.Protocol)
	assert.Equal(t, 12.3, d.Voltage)
	assert.Equal(t, "CDMA BC0", d.Network)
	assert.Equal(t, "213GD", d.HardwareCode)
	assert.Equal(t, StatusFlags{OBDConnected: true, RPMPresent: true}, d.StatusFlags)

	if assert.Len(t, login.GpsInfo, 1) {
		fix := login.GpsInfo[0]
		assert.Equal(t, 36.0, fix.SpeedKmh)
		assert.Equal(t, 155.0, fix.DirectionDegrees)
		assert.Equal(t, "3D fix", fix.FixType)
	}
	assert.Equal(t, in.SoftwareVersion, *login.SoftwareVersion)
	assert.Equal(t, in.HardwareVersion, *login.HardwareVersion)
	assert.Equal(t, uint16(2), *login.NewParameterCount)
}

func TestVoltageBaseOverride(t *testing.T) {
	buf := NewPacketBuilder("213GDP2018021343").Build(EncodeLoginPayload(sampleLogin()))

	d := &Decoder{VoltageBase: 0}
	packet, err := d.Decode(buf, OdometerCalibration{})
	require.NoError(t, err)
	login, _ := packet.Login()
	assert.Equal(t, 4.3, login.Reserved.Voltage)
}

func TestDecodedPacketJSON(t *testing.T) {
	packet, err := Decode(capturedPacket(t), OdometerCalibration{OffsetKm: 105826.41})
	require.NoError(t, err)

	b, err := json.Marshal(packet)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))

	assert.Equal(t, "0x4040", doc["protocol_head"])
	assert.Equal(t, float64(134), doc["protocol_length"])
	assert.Equal(t, "218LSAB2025000002", doc["device_id"])
	assert.Equal(t, "0x0110", doc["protocol_id"])
	assert.Equal(t, "0x3614", doc["crc"])
	assert.Equal(t, true, doc["crc_valid"])
	assert.Equal(t, "0x0d0a", doc["protocol_tail"])

	payload, ok := doc["payload"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{
		"last_accon_time", "utc_time", "device_reported_mileage_meters",
		"device_reported_mileage_km", "calculated_vehicle_odometer_km",
		"vstate_raw", "vstate_decoded", "reserved", "gps_count", "gps_info",
		"software_version", "hardware_version", "new_parameter_count", "incomplete",
	} {
		assert.Contains(t, payload, key)
	}
	assert.NotContains(t, payload, "first_missing_field")
	assert.Equal(t, "2055-07-16 17:37:37", payload["utc_time"])
	assert.Equal(t, "0x00040200", payload["vstate_raw"])
	assert.Equal(t, 107236.0, payload["calculated_vehicle_odometer_km"])

	reserved := payload["reserved"].(map[string]any)
	assert.Equal(t, 12.3, reserved["voltage_V"])
	assert.Equal(t, "0x1c81", reserved["status_flags_raw"])
}

func TestPeekDeviceID(t *testing.T) {
	buf := capturedPacket(t)
	assert.Equal(t, "218LSAB2025000002", PeekDeviceID(buf))
	assert.Equal(t, "218LSAB2025000002", PeekDeviceID(buf[:PayloadOffset]))
	assert.Empty(t, PeekDeviceID(buf[:PayloadOffset-1]))
}

// loginPrefix returns the payload bytes up to the firmware version.
func loginPrefix() []byte {
	f := sampleLogin()
	f.SoftwareVersion, f.HardwareVersion, f.NewParameters = "", "", nil
	payload := EncodeLoginPayload(f)
	return payload[:len(payload)-2*versionFieldSize-2]
}

func decodeVersionTail(t *testing.T, tail []byte) *LoginPayload {
	t.Helper()
	payload := append(loginPrefix(), tail...)
	packet, err := Decode(NewPacketBuilder("213GDP2018021343").Build(payload), OdometerCalibration{})
	require.NoError(t, err)
	login, ok := packet.Login()
	require.True(t, ok)
	return login
}

func TestDecodeVersionFields(t *testing.T) {
	params := []byte{0x02, 0x00, 0x01, 0x18, 0x02, 0x18}

	tests := []struct {
		name     string
		versions []byte
		software string
		hardware string
	}{
		{
			name:     "nul padded",
			versions: append(padRight("V2.1.7", 20), padRight("HW-36V", 20)...),
			software: "V2.1.7",
			hardware: "HW-36V",
		},
		{
			name:     "twenty characters without nul",
			versions: append([]byte("ABCDEFGHIJ0123456789"), padRight("HW", 20)...),
			software: "ABCDEFGHIJ0123456789",
			hardware: "HW",
		},
		{
			name:     "long nul terminated",
			versions: append([]byte("B4.3.9.2_BRL 2024-01-25 01\x00"), padRight("D-218LSA-B  HDC-36V", 20)...),
			software: "B4.3.9.2_BRL 2024-01-25 01",
			hardware: "D-218LSA-B  HDC-36V",
		},
		{
			name:     "garbage after the nul",
			versions: append([]byte("V1\x00junkjunkjunkjunk!"), padRight("HW", 20)...),
			software: "V1",
			hardware: "HW",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			login := decodeVersionTail(t, append(append([]byte{}, tt.versions...), params...))

			assert.False(t, login.Incomplete, "first missing field %q", login.FirstMissingField)
			assert.Equal(t, tt.software, *login.SoftwareVersion)
			assert.Equal(t, tt.hardware, *login.HardwareVersion)
			assert.Equal(t, uint16(2), *login.NewParameterCount)
			assert.Equal(t, []Hex16{0x1801, 0x1802}, login.NewParameters)
		})
	}
}

func TestDecodeVersionFieldsWithTrailingBytes(t *testing.T) {
	// the parameter list does not end the payload, so the fields are read
	// at their nominal width
	tail := append(padRight("V2.1.7", 20), padRight("HW-36V", 20)...)
	tail = append(tail, 0x01, 0x00, 0x01, 0x18, 0xaa, 0xbb, 0xcc)

	login := decodeVersionTail(t, tail)
	assert.Equal(t, "V2.1.7", *login.SoftwareVersion)
	assert.Equal(t, "HW-36V", *login.HardwareVersion)
	assert.Equal(t, []Hex16{0x1801}, login.NewParameters)
}

func TestDecodeVersionFieldTruncated(t *testing.T) {
	login := decodeVersionTail(t, []byte("V2.1.7"))

	assert.True(t, login.Incomplete)
	assert.Equal(t, "software_version", login.FirstMissingField)
	assert.Nil(t, login.SoftwareVersion)
	assert.Nil(t, login.HardwareVersion)
}
