package calibration

import (
	"context"
	"sync"

	errs "github.com/404minds/obd-receiver/internal/errors"
	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var logger = configuredLogger.Logger

// Source holds the odometer offset of every installed device.
// Get returns errs.ErrCalibrationNotFound for devices without one.
type Source interface {
	Get(ctx context.Context, deviceID string) (sinocastel.OdometerCalibration, error)
	Set(ctx context.Context, deviceID string, cal sinocastel.OdometerCalibration) error
}

// Resolve returns the calibration for deviceID, or a zero offset when none is
// stored or the source fails.
func Resolve(ctx context.Context, src Source, deviceID string) sinocastel.OdometerCalibration {
	if src == nil {
		return sinocastel.OdometerCalibration{}
	}
	cal, err := src.Get(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, errs.ErrCalibrationNotFound) {
			logger.Warn("calibration lookup failed, using zero offset", zap.String("deviceId", deviceID), zap.Error(err))
		}
		return sinocastel.OdometerCalibration{}
	}
	return cal
}

type StaticSource struct {
	mu      sync.RWMutex
	offsets map[string]sinocastel.OdometerCalibration
}

func NewStaticSource(offsets map[string]float64) *StaticSource {
	s := &StaticSource{offsets: make(map[string]sinocastel.OdometerCalibration, len(offsets))}
	for id, km := range offsets {
		s.offsets[id] = sinocastel.OdometerCalibration{OffsetKm: km}
	}
	return s
}

func (s *StaticSource) Get(_ context.Context, deviceID string) (sinocastel.OdometerCalibration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.offsets[deviceID]
	if !ok {
		return cal, errors.Wrapf(errs.ErrCalibrationNotFound, "device %s", deviceID)
	}
	return cal, nil
}

func (s *StaticSource) Set(_ context.Context, deviceID string, cal sinocastel.OdometerCalibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[deviceID] = cal
	return nil
}

// Layered reads from each source in turn and writes to the first one.
type Layered []Source

func (l Layered) Get(ctx context.Context, deviceID string) (sinocastel.OdometerCalibration, error) {
	for _, src := range l {
		cal, err := src.Get(ctx, deviceID)
		if err == nil {
			return cal, nil
		}
		if !errors.Is(err, errs.ErrCalibrationNotFound) {
			logger.Warn("calibration source failed", zap.String("deviceId", deviceID), zap.Error(err))
		}
	}
	return sinocastel.OdometerCalibration{}, errors.Wrapf(errs.ErrCalibrationNotFound, "device %s", deviceID)
}

func (l Layered) Set(ctx context.Context, deviceID string, cal sinocastel.OdometerCalibration) error {
	if len(l) == 0 {
		return errors.New("no calibration source configured")
	}
	return l[0].Set(ctx, deviceID, cal)
}
