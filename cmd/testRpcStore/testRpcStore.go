package main

import (
	"context"
	"fmt"
	"net"
	"os"

	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/internal/store"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var logger = configuredLogger.Logger

type server struct{}

func (s *server) SaveDeviceStatus(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.GetFields()
	odometer := fields["packet"].GetStructValue().GetFields()["payload"].GetStructValue().GetFields()["calculated_vehicle_odometer_km"]

	logger.Info("device status",
		zap.String("deviceId", fields["device_id"].GetStringValue()),
		zap.String("source", fields["source"].GetStringValue()),
		zap.Float64("odometerKm", odometer.GetNumberValue()))
	logger.Debug("device status body", zap.Any("status", req.AsMap()))
	return &emptypb.Empty{}, nil
}

func main() {
	port := pflag.Int("port", 0, "port for this server")
	pflag.Parse()

	if *port == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "Usage:")
		pflag.PrintDefaults()
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", *port))
	if err != nil {
		logger.Sugar().Fatalf("failed to listen: %v", err)
	}

	logger.Sugar().Infoln("Listening on port ", *port)
	s := grpc.NewServer()
	store.RegisterAvlDataStoreServer(s, &server{})
	if err := s.Serve(lis); err != nil {
		logger.Sugar().Fatalf("failed to serve: %v", err)
	}
}
