package calibration

import (
	"context"
	"encoding/json"
	"time"

	errs "github.com/404minds/obd-receiver/internal/errors"
	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "obd:calibration:"

type RedisSource struct {
	client *redis.Client
}

// NewRedisSource connects to redisURL (redis://host:port/db) and pings it.
func NewRedisSource(ctx context.Context, redisURL string) (*RedisSource, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return &RedisSource{client: client}, nil
}

func calibrationKey(deviceID string) string {
	return keyPrefix + deviceID
}

func (r *RedisSource) Get(ctx context.Context, deviceID string) (sinocastel.OdometerCalibration, error) {
	var cal sinocastel.OdometerCalibration

	data, err := r.client.Get(ctx, calibrationKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cal, errors.Wrapf(errs.ErrCalibrationNotFound, "device %s", deviceID)
	}
	if err != nil {
		return cal, errors.Wrapf(err, "redis GET %s", calibrationKey(deviceID))
	}

	if err := json.Unmarshal(data, &cal); err != nil {
		return cal, errors.Wrapf(err, "bad calibration record for %s", deviceID)
	}
	return cal, nil
}

func (r *RedisSource) Set(ctx context.Context, deviceID string, cal sinocastel.OdometerCalibration) error {
	data, err := json.Marshal(cal)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, calibrationKey(deviceID), data, 0).Err()
}

func (r *RedisSource) Close() error {
	return r.client.Close()
}
