package store

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName            = "AVLService"
	insertAVLMethod        = "/" + serviceName + "/InsertAVL"
	insertAVLMethodName    = "InsertAVL"
	avlServiceProtoPackage = "avl_service.proto"
)

// AvlDataStoreClient sends decoded records to the remote data store.
type AvlDataStoreClient interface {
	SaveDeviceStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type CustomAvlDataStoreClient struct {
	cc grpc.ClientConnInterface
}

func (c CustomAvlDataStoreClient) SaveDeviceStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	err := c.cc.Invoke(ctx, insertAVLMethod, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func NewCustomAvlDataStoreClient(cc grpc.ClientConnInterface) *CustomAvlDataStoreClient {
	return &CustomAvlDataStoreClient{cc: cc}
}
