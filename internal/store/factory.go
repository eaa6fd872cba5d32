package store

import (
	"time"

	errs "github.com/404minds/obd-receiver/internal/errors"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	StoreTypeLocal  = "local"
	StoreTypeRemote = "remote"
	StoreTypeMongo  = "mongo"
	StoreTypeAmqp   = "amqp"
	StoreTypeMqtt   = "mqtt"
)

// Backends holds the shared connections stores are built on. Only the one
// selected by StoreType needs to be set.
type Backends struct {
	StoreType string
	DataDir   string
	Remote    AvlDataStoreClient
	Mongo     *mongo.Collection
	Amqp      *AmqpPublisher
	Mqtt      *MqttPublisher
}

// NewStore builds the per-connection store for deviceID.
func (b *Backends) NewStore(deviceID string) (Store, error) {
	switch b.StoreType {
	case StoreTypeLocal:
		file, err := OpenJsonLinesFile(b.DataDir, deviceID, time.Now())
		if err != nil {
			return nil, err
		}
		logger.Info("created json file store", zap.String("deviceId", deviceID), zap.String("file", file.Name()))
		return NewJsonLinesStore(file, deviceID), nil
	case StoreTypeRemote:
		if b.Remote == nil {
			return nil, errors.New("remote store client not configured")
		}
		return NewRemoteRpcStore(b.Remote), nil
	case StoreTypeMongo:
		if b.Mongo == nil {
			return nil, errors.New("mongodb collection not configured")
		}
		return NewMongoStore(b.Mongo), nil
	case StoreTypeAmqp:
		if b.Amqp == nil {
			return nil, errors.New("rabbitmq publisher not configured")
		}
		return NewAmqpStore(b.Amqp), nil
	case StoreTypeMqtt:
		if b.Mqtt == nil {
			return nil, errors.New("mqtt publisher not configured")
		}
		return NewMqttStore(b.Mqtt), nil
	default:
		return nil, errors.Wrapf(errs.ErrUnknownStoreType, "%q", b.StoreType)
	}
}
