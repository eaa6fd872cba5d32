package store

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// AvlDataStoreServer is the server side of AvlDataStoreClient.
type AvlDataStoreServer interface {
	SaveDeviceStatus(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

func RegisterAvlDataStoreServer(s grpc.ServiceRegistrar, srv AvlDataStoreServer) {
	s.RegisterService(&AvlDataStore_ServiceDesc, srv)
}

func _AvlDataStore_SaveDeviceStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AvlDataStoreServer).SaveDeviceStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: insertAVLMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AvlDataStoreServer).SaveDeviceStatus(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var AvlDataStore_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AvlDataStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: insertAVLMethodName,
			Handler:    _AvlDataStore_SaveDeviceStatus_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: avlServiceProtoPackage,
}
