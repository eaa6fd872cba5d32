package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/404minds/obd-receiver/internal/api"
	"github.com/404minds/obd-receiver/internal/calibration"
	"github.com/404minds/obd-receiver/internal/config"
	"github.com/404minds/obd-receiver/internal/handlers"
	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/internal/protocols"
	protocolSinocastel "github.com/404minds/obd-receiver/internal/protocols/sinocastel"
	"github.com/404minds/obd-receiver/internal/store"
	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var logger = configuredLogger.Logger

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := configuredLogger.Init(cfg.Environment); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer configuredLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	calibrations, closeCalibrations := buildCalibrations(ctx, cfg)
	defer closeCalibrations()

	backends, closeBackends, err := buildBackends(ctx, cfg)
	if err != nil {
		logger.Sugar().Fatalf("store %s: %v", cfg.Store.Type, err)
	}
	defer closeBackends()

	decoder := &sinocastel.Decoder{VoltageBase: cfg.Receiver.VoltageBase}
	tcpHandler := handlers.NewTcpHandler(backends, protocols.Options{
		Source: "tcp",
		Sinocastel: protocolSinocastel.SinocastelProtocol{
			Decoder:         decoder,
			Calibrations:    calibrations,
			RequireValidCrc: cfg.Receiver.RequireValidCrc,
		},
	})

	// Start TCP Server
	listener, err := net.Listen("tcp4", fmt.Sprintf(":%d", cfg.Receiver.Port))
	if err != nil {
		logger.Sugar().Fatalf("Error listening on port %d: %v", cfg.Receiver.Port, err)
	}
	logger.Sugar().Infof("TCP server listening on port %d", cfg.Receiver.Port)
	go acceptConnections(ctx, listener, tcpHandler)

	var servers []*http.Server
	if cfg.Receiver.WsPort > 0 {
		wsHandler := handlers.NewWebSocketHandler(backends, protocols.Options{
			Source: "ws",
			Sinocastel: protocolSinocastel.SinocastelProtocol{
				Decoder:         decoder,
				Calibrations:    calibrations,
				RequireValidCrc: cfg.Receiver.RequireValidCrc,
			},
		})
		servers = append(servers, serveHttp("WebSocket", cfg.Receiver.WsPort, wsHandler))
	}
	if cfg.Receiver.HttpPort > 0 {
		router := api.NewRouter(api.NewHandler(calibrations, decoder))
		servers = append(servers, serveHttp("admin HTTP", cfg.Receiver.HttpPort, router))
	}

	var grpcServer *grpc.Server
	if cfg.Receiver.GrpcPort > 0 {
		grpcServer = startGrpcServer(cfg.Receiver.GrpcPort, cfg.Store.Type)
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.Strings("connectedDevices", tcpHandler.ConnectedDevices()))

	_ = listener.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}

func acceptConnections(ctx context.Context, listener net.Listener, tcpHandler interface{ HandleConnection(net.Conn) }) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Sugar().Errorf("Error accepting a new connection: %v", err)
			continue
		}
		logger.Sugar().Infof("New connection from %s", conn.RemoteAddr().String())
		go tcpHandler.HandleConnection(conn)
	}
}

func serveHttp(name string, port int, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Sugar().Infof("%s server listening on port %d", name, port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar().Fatalf("%s server on port %d: %v", name, port, err)
		}
	}()
	return srv
}

// startGrpcServer exposes the standard gRPC health service.
func startGrpcServer(port int, storeType string) *grpc.Server {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		logger.Sugar().Fatalf("Failed to listen on port %d: %v", port, err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("obd-receiver."+storeType, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	go func() {
		logger.Sugar().Infof("gRPC server listening on port %d", port)
		if err := grpcServer.Serve(listener); err != nil {
			logger.Sugar().Errorf("Failed to serve gRPC on port %d: %v", port, err)
		}
	}()
	return grpcServer
}

// buildCalibrations layers redis over the static list from the config.
// Offsets written through the admin API go to the first layer.
func buildCalibrations(ctx context.Context, cfg *config.Config) (calibration.Source, func()) {
	static := calibration.NewStaticSource(cfg.CalibrationOffsets())
	if cfg.Redis.URL == "" {
		return static, func() {}
	}

	redisSource, err := calibration.NewRedisSource(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Error("redis calibration unavailable, using static offsets only", zap.Error(err))
		return static, func() {}
	}
	logger.Info("calibration offsets read from redis")
	return calibration.Layered{redisSource, static}, func() {
		_ = redisSource.Close()
	}
}

func buildBackends(ctx context.Context, cfg *config.Config) (*store.Backends, func(), error) {
	backends := &store.Backends{StoreType: cfg.Store.Type, DataDir: cfg.Store.DataDir}
	noop := func() {}

	switch cfg.Store.Type {
	case store.StoreTypeLocal:
		if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
			return nil, nil, errors.Wrap(err, "create data dir")
		}
		return backends, noop, nil

	case store.StoreTypeRemote:
		storeConn, err := grpc.NewClient(cfg.Store.RemoteStoreAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, errors.Wrap(err, "did not connect")
		}
		go func() {
			time.Sleep(5 * time.Second)
			if storeConn.GetState() != connectivity.Ready {
				logger.Sugar().Errorf("Connection to gRPC server %s not ready", cfg.Store.RemoteStoreAddr)
			} else {
				logger.Sugar().Infof("Connected to gRPC server %s", cfg.Store.RemoteStoreAddr)
			}
		}()
		storeConn.Connect()
		backends.Remote = store.NewCustomAvlDataStoreClient(storeConn)
		return backends, func() { _ = storeConn.Close() }, nil

	case store.StoreTypeMongo:
		collection, err := store.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return nil, nil, err
		}
		backends.Mongo = collection
		return backends, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = collection.Database().Client().Disconnect(disconnectCtx)
		}, nil

	case store.StoreTypeAmqp:
		publisher, err := store.NewAmqpPublisher(store.AmqpConfig{
			URL:          cfg.Amqp.URL,
			Exchange:     cfg.Amqp.Exchange,
			ExchangeType: cfg.Amqp.ExchangeType,
			RoutingKey:   cfg.Amqp.RoutingKey,
		})
		if err != nil {
			return nil, nil, err
		}
		backends.Amqp = publisher
		return backends, func() { _ = publisher.Close() }, nil

	case store.StoreTypeMqtt:
		publisher, err := store.NewMqttPublisher(store.MqttConfig{
			Broker:      cfg.Mqtt.Broker,
			ClientID:    cfg.Mqtt.ClientID,
			Username:    cfg.Mqtt.Username,
			Password:    cfg.Mqtt.Password,
			TopicPrefix: cfg.Mqtt.TopicPrefix,
			QoS:         byte(cfg.Mqtt.QoS),
		})
		if err != nil {
			return nil, nil, err
		}
		backends.Mqtt = publisher
		return backends, publisher.Close, nil
	}
	// config.Validate rejects anything else; NewStore reports it per connection
	return backends, noop, nil
}
