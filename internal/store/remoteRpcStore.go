package store

import (
	"context"

	"github.com/404minds/obd-receiver/internal/types"
	"github.com/pkg/errors"
)

type RemoteRpcStore struct {
	queue
	RemoteStoreClient AvlDataStoreClient
}

func NewRemoteRpcStore(client AvlDataStoreClient) *RemoteRpcStore {
	return &RemoteRpcStore{queue: newQueue(), RemoteStoreClient: client}
}

func (s *RemoteRpcStore) Process(ctx context.Context) {
	s.drain(ctx, "remote", s.save)
}

func (s *RemoteRpcStore) save(ctx context.Context, status types.DeviceStatus) error {
	in, err := status.ToStruct()
	if err != nil {
		return errors.Wrap(err, "convert device status")
	}
	_, err = s.RemoteStoreClient.SaveDeviceStatus(ctx, in)
	return err
}
