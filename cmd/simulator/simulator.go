package main

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var logger = configuredLogger.Logger

var (
	addr        = pflag.String("addr", "localhost:29479", "receiver TCP address")
	deviceID    = pflag.String("device", "213GDP2018021343", "device id sent in every frame")
	count       = pflag.Int("count", 1, "frames to send, 0 sends until interrupted")
	interval    = pflag.Duration("interval", 10*time.Second, "pause between frames")
	mileage     = pflag.Uint32("mileage", 15727, "device mileage in meters at the first frame")
	speed       = pflag.Float64("speed", 36, "simulated speed in km/h")
	latitude    = pflag.Float64("lat", -22.39591, "starting latitude")
	longitude   = pflag.Float64("lon", -43.13361, "starting longitude")
	rawHex      = pflag.String("hex", "", "send this hex frame as-is instead of building one")
	noiseBytes  = pflag.Int("noise", 0, "garbage bytes written before each frame")
	softwareVer = pflag.String("software", "B4.3.9.2_BRL 2024-01-25 01", "software version string")
	hardwareVer = pflag.String("hardware", "D-213GD", "hardware version string")
)

func main() {
	pflag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		logger.Sugar().Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()
	logger.Sugar().Infof("Connected to %s", *addr)

	if *rawHex != "" {
		frame, err := hex.DecodeString(strings.Join(strings.Fields(*rawHex), ""))
		if err != nil {
			logger.Sugar().Fatalf("invalid --hex: %v", err)
		}
		send(conn, frame)
		return
	}

	builder := sinocastel.NewPacketBuilder(*deviceID)
	sim := newVehicle(*mileage, *latitude, *longitude, *speed)
	accOn := time.Now().UTC()

	for i := 0; *count == 0 || i < *count; i++ {
		if i > 0 {
			time.Sleep(*interval)
			sim.advance(*interval)
		}
		frame := builder.Build(sinocastel.EncodeLoginPayload(sim.fields(accOn, *softwareVer, *hardwareVer)))
		send(conn, frame)
	}
}

func send(conn net.Conn, frame []byte) {
	if *noiseBytes > 0 {
		noise := make([]byte, *noiseBytes)
		_, _ = rand.Read(noise)
		if _, err := conn.Write(noise); err != nil {
			logger.Sugar().Fatalf("write failed: %v", err)
		}
	}
	if _, err := conn.Write(frame); err != nil {
		logger.Sugar().Fatalf("write failed: %v", err)
	}
	logger.Info("frame sent", zap.Int("bytes", len(frame)), zap.String("hex", fmt.Sprintf("%x", frame)))
}

// vehicle drives north-east in a straight line at constant speed.
type vehicle struct {
	mileageMeters uint32
	tripMeters    uint32
	fuel          uint32
	lat, lon      float64
	speedKmh      float64
	at            time.Time
}

func newVehicle(mileage uint32, lat, lon, speedKmh float64) *vehicle {
	return &vehicle{mileageMeters: mileage, fuel: 16024, lat: lat, lon: lon, speedKmh: speedKmh, at: time.Now().UTC()}
}

func (v *vehicle) advance(d time.Duration) {
	meters := uint32(v.speedKmh * d.Hours() * 1000)
	v.mileageMeters += meters
	v.tripMeters += meters
	v.lat += 0.00001 * float64(meters) / 1.11
	v.lon += 0.00001 * float64(meters) / 1.11
	v.at = v.at.Add(d)
	if v.fuel > 0 {
		v.fuel--
	}
}

func (v *vehicle) fields(accOn time.Time, software, hardware string) sinocastel.LoginFields {
	return sinocastel.LoginFields{
		LastAccOn:     accOn,
		UTCTime:       v.at,
		MileageMeters: v.mileageMeters,
		TripMeters:    v.tripMeters,
		TotalFuel:     v.fuel,
		CurrentFuel:   661,
		VState:        sinocastel.VStateAccOn,
		Diagnostics: sinocastel.DiagnosticsFields{
			ProtocolCode:   0x07,
			VoltageRaw:     0x2b,
			NetworkCode:    0x01,
			HardwareCode:   0x05,
			SignalStrength: 21,
			BER:            2,
			StatusFlags:    0x0003,
		},
		Fixes: []sinocastel.GpsFields{{
			Time:       v.at,
			Latitude:   v.lat,
			Longitude:  v.lon,
			SpeedCmS:   uint16(v.speedKmh * 100000 / 3600),
			Heading:    45,
			Quality:    sinocastel.Fix3D,
			Satellites: 11,
		}},
		SoftwareVersion: software,
		HardwareVersion: hardware,
	}
}
