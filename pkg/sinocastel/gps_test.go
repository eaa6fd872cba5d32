package sinocastel

import (
	"encoding/hex"
	"testing"
	"time"

	errs "github.com/404minds/obd-receiver/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestDecodeGpsFixFromCapture(t *testing.T) {
	// fix taken from a 218LSA-B login packet, Rio de Janeiro
	data, _ := hex.DecodeString("1007191125227c3ece046466410900000e06bc")
	c := NewCursor(data)

	fix, err := DecodeGpsFix(c)
	if assert.NoError(t, err, "gps fix should decode") {
		assert.Equal(t, GpsFixSize, c.Pos())
		assert.Equal(t, "16/07/2025", fix.Date)
		assert.Equal(t, "17:37:34", fix.Time)
		if assert.NotNil(t, fix.Timestamp) {
			assert.Equal(t, time.Date(2025, 7, 16, 17, 37, 34, 0, time.UTC), fix.Timestamp.Time)
		}
		assert.InDelta(t, -22.39591, fix.Latitude, 1e-6, "south latitude should be negative")
		assert.InDelta(t, -43.13361, fix.Longitude, 1e-6, "west longitude should be negative")
		assert.Equal(t, "S", fix.LatitudeDirection)
		assert.Equal(t, "W", fix.LongitudeDirection)
		assert.Equal(t, uint16(0), fix.SpeedCmS)
		assert.Equal(t, 155.0, fix.DirectionDegrees)
		assert.Equal(t, uint8(11), fix.SatelliteCount)
		assert.Equal(t, FixQuality(3), fix.Quality)
		assert.Equal(t, "unknown", fix.FixType)
	}
}

func TestGpsHemisphereFlags(t *testing.T) {
	when := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	base := GpsFields{Time: when, Latitude: 22.5, Longitude: 43.25, Quality: Fix3D, Satellites: 9}

	cases := []struct {
		name        string
		flags       byte
		expectedLat float64
		expectedLon float64
	}{
		{"north east", gpsFlagNorth | gpsFlagEast, 22.5, 43.25},
		{"north west", gpsFlagNorth, 22.5, -43.25},
		{"south east", gpsFlagEast, -22.5, 43.25},
		{"south west", 0x00, -22.5, -43.25},
	}

	for _, tc := range cases {
		record := EncodeGpsFix(base)
		record[GpsFixSize-1] = (record[GpsFixSize-1] &^ (gpsFlagNorth | gpsFlagEast)) | tc.flags

		fix, err := DecodeGpsFix(NewCursor(record))
		if assert.NoError(t, err, tc.name) {
			assert.InDelta(t, tc.expectedLat, fix.Latitude, 1e-9, tc.name)
			assert.InDelta(t, tc.expectedLon, fix.Longitude, 1e-9, tc.name)
			assert.Equal(t, Fix3D, fix.Quality, tc.name)
			assert.Equal(t, "3D fix", fix.FixType, tc.name)
			assert.Equal(t, uint8(9), fix.SatelliteCount, tc.name)
		}
	}
}

func TestGpsFixRoundTrip(t *testing.T) {
	in := GpsFields{
		Time:       time.Date(2024, 12, 31, 23, 59, 58, 0, time.UTC),
		Latitude:   -23.550520,
		Longitude:  -46.633308,
		SpeedCmS:   1389,
		Heading:    271.3,
		Quality:    Fix2D,
		Satellites: 7,
	}

	fix, err := DecodeGpsFix(NewCursor(EncodeGpsFix(in)))
	if assert.NoError(t, err) {
		assert.Equal(t, "31/12/2024", fix.Date)
		assert.Equal(t, "23:59:58", fix.Time)
		assert.InDelta(t, in.Latitude, fix.Latitude, 1.0/coordinateScale)
		assert.InDelta(t, in.Longitude, fix.Longitude, 1.0/coordinateScale)
		assert.Equal(t, uint16(1389), fix.SpeedCmS)
		assert.Equal(t, 50.0, fix.SpeedKmh)
		assert.Equal(t, 271.3, fix.DirectionDegrees)
		assert.Equal(t, Fix2D, fix.Quality)
		assert.Equal(t, uint8(7), fix.SatelliteCount)
	}
}

func TestGpsFixTruncated(t *testing.T) {
	c := NewCursor(make([]byte, GpsFixSize-1))
	_, err := DecodeGpsFix(c)
	assert.ErrorIs(t, err, errs.ErrTruncatedField)
	assert.Equal(t, 0, c.Pos(), "a short record should not be consumed")
}

func TestGpsFixInvalidDate(t *testing.T) {
	record := make([]byte, GpsFixSize)
	fix, err := DecodeGpsFix(NewCursor(record))
	assert.NoError(t, err)
	assert.Equal(t, "00/00/2000", fix.Date)
	assert.Nil(t, fix.Timestamp, "an impossible date should not produce a timestamp")
	assert.Equal(t, FixInvalid, fix.Quality)
}
