package sinocastel

import (
	"fmt"
	"time"
)

const (
	GpsFixSize      = 19 // date(3) + time(3) + lat(4) + lon(4) + speed(2) + heading(2) + flags(1)
	coordinateScale = 3600000.0
)

// GPS flag byte
const (
	gpsFlagEast        = 0x01 // 1 - east, 0 - west
	gpsFlagNorth       = 0x02 // 1 - north, 0 - south
	gpsFlagQualityMask = 0x0c
	gpsFlagQualityBits = 2
	gpsFlagSatBits     = 4
)

type FixQuality uint8

const (
	FixInvalid FixQuality = 0
	Fix2D      FixQuality = 1
	Fix3D      FixQuality = 2
)

func (q FixQuality) String() string {
	switch q {
	case FixInvalid:
		return "invalid"
	case Fix2D:
		return "2D fix"
	case Fix3D:
		return "3D fix"
	default:
		return "unknown"
	}
}

type GpsFix struct {
	Date               string     `json:"date"`
	Time               string     `json:"time"`
	Timestamp          *Timestamp `json:"timestamp,omitempty"`
	Latitude           float64    `json:"latitude"`
	Longitude          float64    `json:"longitude"`
	SpeedCmS           uint16     `json:"speed_cm_s"`
	SpeedKmh           float64    `json:"speed_kmh"`
	DirectionDegrees   float64    `json:"direction_degrees"`
	LatitudeDirection  string     `json:"latitude_direction"`
	LongitudeDirection string     `json:"longitude_direction"`
	Quality            FixQuality `json:"-"`
	FixType            string     `json:"fix_type"`
	SatelliteCount     uint8      `json:"satellite_count"`
	FlagsRaw           uint8      `json:"flags_raw"`
}

// DecodeGpsFix reads one fixed-size GPS record. Nothing is consumed when
// fewer than GpsFixSize bytes remain.
func DecodeGpsFix(c *Cursor) (GpsFix, error) {
	var fix GpsFix

	record, err := c.ReadBytes(GpsFixSize)
	if err != nil {
		return fix, err
	}
	r := NewCursor(record)

	day, _ := r.ReadU8()
	month, _ := r.ReadU8()
	year, _ := r.ReadU8()
	hour, _ := r.ReadU8()
	minute, _ := r.ReadU8()
	second, _ := r.ReadU8()
	fix.Date = fmt.Sprintf("%02d/%02d/20%02d", day, month, year)
	fix.Time = fmt.Sprintf("%02d:%02d:%02d", hour, minute, second)
	fix.Timestamp = gpsTimestamp(day, month, year, hour, minute, second)

	latRaw, _ := r.ReadU32()
	lonRaw, _ := r.ReadU32()
	fix.SpeedCmS, _ = r.ReadU16()
	headingRaw, _ := r.ReadU16()
	fix.FlagsRaw, _ = r.ReadU8()

	fix.Latitude = float64(latRaw) / coordinateScale
	fix.Longitude = float64(lonRaw) / coordinateScale
	fix.LatitudeDirection = "N"
	fix.LongitudeDirection = "E"
	if fix.FlagsRaw&gpsFlagNorth == 0 {
		fix.Latitude = -fix.Latitude
		fix.LatitudeDirection = "S"
	}
	if fix.FlagsRaw&gpsFlagEast == 0 {
		fix.Longitude = -fix.Longitude
		fix.LongitudeDirection = "W"
	}

	fix.SpeedKmh = SpeedToKmh(fix.SpeedCmS)
	fix.DirectionDegrees = HeadingToDegrees(headingRaw)
	fix.Quality = FixQuality((fix.FlagsRaw & gpsFlagQualityMask) >> gpsFlagQualityBits)
	fix.FixType = fix.Quality.String()
	fix.SatelliteCount = fix.FlagsRaw >> gpsFlagSatBits
	return fix, nil
}

// gpsTimestamp returns nil for field values no calendar date can have.
func gpsTimestamp(day, month, year, hour, minute, second uint8) *Timestamp {
	if day < 1 || day > 31 || month < 1 || month > 12 || year > 99 || hour > 23 || minute > 59 || second > 59 {
		return nil
	}
	t := time.Date(2000+int(year), time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
	if t.Day() != int(day) {
		return nil
	}
	return &Timestamp{t}
}
