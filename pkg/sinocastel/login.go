package sinocastel

import (
	"encoding/binary"
	"fmt"
)

// ProtocolLogin selects the login/status payload.
const ProtocolLogin uint16 = 0x0110

const (
	diagnosticsSize  = 8
	versionFieldSize = 20
)

// status_flags bits of the diagnostic block
const (
	statusOBDConnected = 1 << iota
	statusRPMPresent
	statusGPSError
	statusRTCError
	statusVoltageError
)

type StatusFlags struct {
	OBDConnected bool `json:"obd_connected"`
	RPMPresent   bool `json:"rpm_present"`
	GPSError     bool `json:"gps_error"`
	RTCError     bool `json:"rtc_error"`
	VoltageError bool `json:"voltage_error"`
}

// Diagnostics is the 8-byte block following VSTATE.
type Diagnostics struct {
	ProtocolCode   uint8       `json:"protocol_code"`
	Protocol       string      `json:"protocol"`
	VoltageRaw     uint8       `json:"voltage_raw"`
	Voltage        float64     `json:"voltage_V"`
	NetworkCode    uint8       `json:"network_code"`
	Network        string      `json:"network"`
	HardwareCodeID uint8       `json:"hardware_code_id"`
	HardwareCode   string      `json:"hardware_code"`
	SignalStrength uint8       `json:"signal_strength"`
	BER            uint8       `json:"ber"`
	StatusFlagsRaw Hex16       `json:"status_flags_raw"`
	StatusFlags    StatusFlags `json:"status_flags"`
}

// LoginPayload is the decoded login/status record. A nil field was not
// present in the packet (or the packet ended before it).
type LoginPayload struct {
	LastAccOnTime        *Timestamp   `json:"last_accon_time"`
	UTCTime              *Timestamp   `json:"utc_time"`
	DeviceMileageMeters  *uint32      `json:"device_reported_mileage_meters"`
	DeviceMileageKm      *float64     `json:"device_reported_mileage_km"`
	VehicleOdometerKm    *float64     `json:"calculated_vehicle_odometer_km"`
	CurrentTripMileage   *uint32      `json:"current_trip_mileage"`
	CurrentTripMileageKm *float64     `json:"current_trip_mileage_km,omitempty"`
	TotalFuel            *uint32      `json:"total_fuel"`
	TotalFuelLiters      *float64     `json:"total_fuel_l,omitempty"`
	CurrentFuel          *uint16      `json:"current_fuel"`
	CurrentFuelLiters    *float64     `json:"current_fuel_l,omitempty"`
	VStateRaw            *Hex32       `json:"vstate_raw"`
	VStateDecoded        *string      `json:"vstate_decoded"`
	VStateFlags          []string     `json:"vstate_flags,omitempty"`
	Reserved             *Diagnostics `json:"reserved"`
	GpsCount             *uint8       `json:"gps_count"`
	GpsInfo              []GpsFix     `json:"gps_info"`
	SoftwareVersion      *string      `json:"software_version"`
	HardwareVersion      *string      `json:"hardware_version"`
	NewParameterCount    *uint16      `json:"new_parameter_count"`
	NewParameters        []Hex16      `json:"new_parameters"`

	Incomplete        bool   `json:"incomplete"`
	FirstMissingField string `json:"first_missing_field,omitempty"`
}

func (*LoginPayload) isPayload() {}

// fieldReader keeps the first failed field; every read after it is skipped.
type fieldReader struct {
	c      *Cursor
	failed string
}

func (r *fieldReader) ok() bool {
	return r.failed == ""
}

func (r *fieldReader) fail(field string) {
	if r.failed == "" {
		r.failed = field
	}
}

func readField[T any](r *fieldReader, field string, read func() (T, error)) *T {
	if !r.ok() {
		return nil
	}
	v, err := read()
	if err != nil {
		r.fail(field)
		return nil
	}
	return &v
}

// versionLayout picks the widths of the two version fields at the start of b
// so that the parameter list after them ends exactly at the end of b.
// Firmware strings longer than the nominal 20 bytes run on to their NUL, so
// a 20-character field without a NUL is ambiguous on its own.
func versionLayout(b []byte) (software, hardware int, ok bool) {
	for _, sw := range paddedWidths(b, versionFieldSize) {
		for _, hw := range paddedWidths(b[sw:], versionFieldSize) {
			if parameterListFits(b[sw+hw:]) {
				return sw, hw, true
			}
		}
	}
	return 0, 0, false
}

func parameterListFits(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	count := int(binary.LittleEndian.Uint16(b))
	return len(b) == 2+2*count
}

func ptr[T any](v T) *T {
	return &v
}

// DecodeLoginPayload decodes a login/status payload with the default decoder
// settings.
func DecodeLoginPayload(c *Cursor, cal OdometerCalibration) *LoginPayload {
	return DefaultDecoder.DecodeLoginPayload(c, cal)
}

func (d *Decoder) DecodeLoginPayload(c *Cursor, cal OdometerCalibration) *LoginPayload {
	r := &fieldReader{c: c}
	p := &LoginPayload{}

	if raw := readField(r, "last_accon_time", c.ReadU32); raw != nil {
		p.LastAccOnTime = TimestampFromProtocol(*raw)
	}
	if raw := readField(r, "utc_time", c.ReadU32); raw != nil {
		p.UTCTime = TimestampFromProtocol(*raw)
	}

	p.DeviceMileageMeters = readField(r, "device_reported_mileage_meters", c.ReadU32)
	if p.DeviceMileageMeters != nil {
		p.DeviceMileageKm = ptr(MetersToKm(*p.DeviceMileageMeters))
		p.VehicleOdometerKm = ptr(cal.VehicleOdometerKm(*p.DeviceMileageMeters))
	}

	p.CurrentTripMileage = readField(r, "current_trip_mileage", c.ReadU32)
	if p.CurrentTripMileage != nil {
		p.CurrentTripMileageKm = ptr(MetersToKm(*p.CurrentTripMileage))
	}

	p.TotalFuel = readField(r, "total_fuel", c.ReadU32)
	if p.TotalFuel != nil {
		p.TotalFuelLiters = ptr(FuelToLiters(*p.TotalFuel))
	}

	p.CurrentFuel = readField(r, "current_fuel", c.ReadU16)
	if p.CurrentFuel != nil {
		p.CurrentFuelLiters = ptr(FuelToLiters(uint32(*p.CurrentFuel)))
	}

	if vstate := readField(r, "vstate", c.ReadU32); vstate != nil {
		p.VStateRaw = ptr(Hex32(*vstate))
		p.VStateFlags = DecodeVehicleState(*vstate)
		p.VStateDecoded = ptr(describeVehicleState(p.VStateFlags))
	}

	if block := readField(r, "reserved", func() ([]byte, error) { return c.ReadBytes(diagnosticsSize) }); block != nil {
		p.Reserved = d.decodeDiagnostics(*block)
	}

	p.GpsCount = readField(r, "gps_count", c.ReadU8)
	if p.GpsCount != nil {
		p.GpsInfo = make([]GpsFix, 0, *p.GpsCount)
		for i := 0; i < int(*p.GpsCount) && r.ok(); i++ {
			fix := readField(r, fmt.Sprintf("gps_info[%d]", i), func() (GpsFix, error) { return DecodeGpsFix(c) })
			if fix != nil {
				p.GpsInfo = append(p.GpsInfo, *fix)
			}
		}
	}

	if r.ok() {
		if sw, hw, ok := versionLayout(c.rest()); ok {
			p.SoftwareVersion = readField(r, "software_version", func() (string, error) { return c.ReadFixedASCII(sw) })
			p.HardwareVersion = readField(r, "hardware_version", func() (string, error) { return c.ReadFixedASCII(hw) })
		} else {
			p.SoftwareVersion = readField(r, "software_version", func() (string, error) { return c.ReadPaddedASCII(versionFieldSize) })
			p.HardwareVersion = readField(r, "hardware_version", func() (string, error) { return c.ReadPaddedASCII(versionFieldSize) })
		}
	}

	p.NewParameterCount = readField(r, "new_parameter_count", c.ReadU16)
	if p.NewParameterCount != nil {
		p.NewParameters = make([]Hex16, 0, *p.NewParameterCount)
		for i := 0; i < int(*p.NewParameterCount) && r.ok(); i++ {
			if id := readField(r, fmt.Sprintf("new_parameters[%d]", i), c.ReadU16); id != nil {
				p.NewParameters = append(p.NewParameters, Hex16(*id))
			}
		}
	}

	p.Incomplete = !r.ok()
	p.FirstMissingField = r.failed
	return p
}

func (d *Decoder) decodeDiagnostics(block []byte) *Diagnostics {
	r := NewCursor(block)
	var diag Diagnostics

	diag.ProtocolCode, _ = r.ReadU8()
	diag.VoltageRaw, _ = r.ReadU8()
	diag.NetworkCode, _ = r.ReadU8()
	diag.HardwareCodeID, _ = r.ReadU8()
	diag.SignalStrength, _ = r.ReadU8()
	diag.BER, _ = r.ReadU8()
	flags, _ := r.ReadU16()

	diag.Protocol = obdProtocolName(diag.ProtocolCode)
	diag.Voltage = VoltageFromRaw(diag.VoltageRaw, d.VoltageBase)
	diag.Network = networkName(diag.NetworkCode)
	diag.HardwareCode = hardwareName(diag.HardwareCodeID)
	diag.StatusFlagsRaw = Hex16(flags)
	diag.StatusFlags = StatusFlags{
		OBDConnected: flags&statusOBDConnected != 0,
		RPMPresent:   flags&statusRPMPresent != 0,
		GPSError:     flags&statusGPSError != 0,
		RTCError:     flags&statusRTCError != 0,
		VoltageError: flags&statusVoltageError != 0,
	}
	return &diag
}
