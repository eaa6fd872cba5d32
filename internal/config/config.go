package config

import (
	"strings"

	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	Receiver    ReceiverConfig
	Store       StoreConfig
	Redis       RedisConfig
	Mongo       MongoConfig
	Amqp        AmqpConfig
	Mqtt        MqttConfig
	Calibration []DeviceCalibration
}

type ReceiverConfig struct {
	Port            int
	WsPort          int
	HttpPort        int
	GrpcPort        int
	RequireValidCrc bool
	VoltageBase     float64
}

type StoreConfig struct {
	Type            string
	DataDir         string
	RemoteStoreAddr string
}

type RedisConfig struct {
	URL string
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

type AmqpConfig struct {
	URL          string
	Exchange     string
	ExchangeType string
	RoutingKey   string
}

type MqttConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
}

// DeviceCalibration is one entry of the static calibration list. Either
// OffsetKm or the two install-time readings are given.
type DeviceCalibration struct {
	DeviceID          string  `mapstructure:"device_id"`
	OffsetKm          float64 `mapstructure:"offset_km"`
	VehicleOdometerKm float64 `mapstructure:"vehicle_odometer_km"`
	DeviceMileageKm   float64 `mapstructure:"device_mileage_km"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("receiver.port", 29479)
	v.SetDefault("receiver.ws_port", 29480)
	v.SetDefault("receiver.http_port", 9000)
	v.SetDefault("receiver.grpc_port", 0)
	v.SetDefault("receiver.require_valid_crc", false)
	v.SetDefault("receiver.voltage_base", 8.0)
	v.SetDefault("store.type", "local")
	v.SetDefault("store.data_dir", "./logs")
	v.SetDefault("mongo.database", "obd")
	v.SetDefault("mongo.collection", "packets")
	v.SetDefault("amqp.exchange", "obd.events")
	v.SetDefault("amqp.exchange_type", "topic")
	v.SetDefault("amqp.routing_key", "obd.status")
	v.SetDefault("mqtt.client_id", "obd-receiver")
	v.SetDefault("mqtt.topic_prefix", "obd")
	v.SetDefault("mqtt.qos", 1)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("receiver", pflag.ContinueOnError)
	fs.Int("port", 29479, "TCP port devices connect to")
	fs.Int("wsPort", 29480, "WebSocket port, 0 disables it")
	fs.Int("httpPort", 9000, "admin HTTP port, 0 disables it")
	fs.Int("grpcPort", 0, "gRPC health port, 0 disables it")
	fs.String("storeType", "local", "store type - one of local, remote, mongo, amqp or mqtt")
	fs.String("remoteStoreAddr", "", "address of the remote gRPC store")
	fs.String("dataDir", "./logs", "directory of the local json lines store")
	fs.Bool("requireValidCrc", false, "drop frames whose CRC does not verify")
	fs.String("environment", "development", "development or production")
	fs.String("config", "", "path to a YAML config file")
	return fs
}

var flagKeys = map[string]string{
	"port":            "receiver.port",
	"wsPort":          "receiver.ws_port",
	"httpPort":        "receiver.http_port",
	"grpcPort":        "receiver.grpc_port",
	"requireValidCrc": "receiver.require_valid_crc",
	"storeType":       "store.type",
	"remoteStoreAddr": "store.remote_store_addr",
	"dataDir":         "store.data_dir",
	"environment":     "environment",
}

// Load reads flags from args, then OBD_* environment variables, then the
// optional config file. Flags win over the environment, which wins over the
// file.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("OBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, errors.Wrapf(err, "bind flag %s", flag)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg := &Config{
		Environment: v.GetString("environment"),
		Receiver: ReceiverConfig{
			Port:            v.GetInt("receiver.port"),
			WsPort:          v.GetInt("receiver.ws_port"),
			HttpPort:        v.GetInt("receiver.http_port"),
			GrpcPort:        v.GetInt("receiver.grpc_port"),
			RequireValidCrc: v.GetBool("receiver.require_valid_crc"),
			VoltageBase:     v.GetFloat64("receiver.voltage_base"),
		},
		Store: StoreConfig{
			Type:            v.GetString("store.type"),
			DataDir:         v.GetString("store.data_dir"),
			RemoteStoreAddr: v.GetString("store.remote_store_addr"),
		},
		Redis: RedisConfig{
			URL: v.GetString("redis.url"),
		},
		Mongo: MongoConfig{
			URI:        v.GetString("mongo.uri"),
			Database:   v.GetString("mongo.database"),
			Collection: v.GetString("mongo.collection"),
		},
		Amqp: AmqpConfig{
			URL:          v.GetString("amqp.url"),
			Exchange:     v.GetString("amqp.exchange"),
			ExchangeType: v.GetString("amqp.exchange_type"),
			RoutingKey:   v.GetString("amqp.routing_key"),
		},
		Mqtt: MqttConfig{
			Broker:      v.GetString("mqtt.broker"),
			ClientID:    v.GetString("mqtt.client_id"),
			Username:    v.GetString("mqtt.username"),
			Password:    v.GetString("mqtt.password"),
			TopicPrefix: v.GetString("mqtt.topic_prefix"),
			QoS:         v.GetInt("mqtt.qos"),
		},
	}

	if err := v.UnmarshalKey("calibration", &cfg.Calibration); err != nil {
		return nil, errors.Wrap(err, "decode calibration list")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Receiver.Port <= 0 {
		return errors.New("receiver port must be set")
	}
	switch c.Store.Type {
	case "local", "mongo", "amqp", "mqtt":
	case "remote":
		if c.Store.RemoteStoreAddr == "" {
			return errors.New("remote store needs --remoteStoreAddr")
		}
	default:
		return errors.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Mqtt.QoS < 0 || c.Mqtt.QoS > 2 {
		return errors.Errorf("mqtt qos %d out of range", c.Mqtt.QoS)
	}
	for _, cal := range c.Calibration {
		if cal.DeviceID == "" {
			return errors.New("calibration entry without device_id")
		}
	}
	return nil
}

// CalibrationOffsets resolves the static calibration list to offsets in km.
func (c *Config) CalibrationOffsets() map[string]float64 {
	out := make(map[string]float64, len(c.Calibration))
	for _, cal := range c.Calibration {
		if cal.OffsetKm == 0 && cal.VehicleOdometerKm != 0 {
			out[cal.DeviceID] = sinocastel.NewOdometerCalibration(cal.VehicleOdometerKm, cal.DeviceMileageKm).OffsetKm
			continue
		}
		out[cal.DeviceID] = cal.OffsetKm
	}
	return out
}
