package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AttendanceServiceName は gRPC のサービス名です。
const AttendanceServiceName = "attendance.v1.AttendanceService"

// 各 RPC のフルメソッド名。
const (
	AttendanceService_Login_FullMethodName                         = "/" + AttendanceServiceName + "/Login"
	AttendanceService_StartBreak_FullMethodName                    = "/" + AttendanceServiceName + "/StartBreak"
	AttendanceService_EndBreak_FullMethodName                      = "/" + AttendanceServiceName + "/EndBreak"
	AttendanceService_Logout_FullMethodName                        = "/" + AttendanceServiceName + "/Logout"
	AttendanceService_GetAttendance_FullMethodName                 = "/" + AttendanceServiceName + "/GetAttendance"
	AttendanceService_GetAttendanceByEmployeeAndDay_FullMethodName = "/" + AttendanceServiceName + "/GetAttendanceByEmployeeAndDay"
	AttendanceService_ListAttendance_FullMethodName                = "/" + AttendanceServiceName + "/ListAttendance"
	AttendanceService_Sweep_FullMethodName                         = "/" + AttendanceServiceName + "/Sweep"
)

// AttendanceServiceServer は AttendanceService のサーバー側インターフェースです。
// リクエストとレスポンスは google.protobuf.Struct で表現します。
type AttendanceServiceServer interface {
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartBreak(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndBreak(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAttendance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAttendanceByEmployeeAndDay(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAttendance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Sweep(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AttendanceServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AttendanceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AttendanceServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// AttendanceService_ServiceDesc は AttendanceService の grpc.ServiceDesc です。
var AttendanceService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AttendanceServiceName,
	HandlerType: (*AttendanceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(AttendanceService_Login_FullMethodName, AttendanceServiceServer.Login)},
		{MethodName: "StartBreak", Handler: unaryHandler(AttendanceService_StartBreak_FullMethodName, AttendanceServiceServer.StartBreak)},
		{MethodName: "EndBreak", Handler: unaryHandler(AttendanceService_EndBreak_FullMethodName, AttendanceServiceServer.EndBreak)},
		{MethodName: "Logout", Handler: unaryHandler(AttendanceService_Logout_FullMethodName, AttendanceServiceServer.Logout)},
		{MethodName: "GetAttendance", Handler: unaryHandler(AttendanceService_GetAttendance_FullMethodName, AttendanceServiceServer.GetAttendance)},
		{MethodName: "GetAttendanceByEmployeeAndDay", Handler: unaryHandler(AttendanceService_GetAttendanceByEmployeeAndDay_FullMethodName, AttendanceServiceServer.GetAttendanceByEmployeeAndDay)},
		{MethodName: "ListAttendance", Handler: unaryHandler(AttendanceService_ListAttendance_FullMethodName, AttendanceServiceServer.ListAttendance)},
		{MethodName: "Sweep", Handler: unaryHandler(AttendanceService_Sweep_FullMethodName, AttendanceServiceServer.Sweep)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "attendance/v1/attendance.proto",
}

// RegisterAttendanceServiceServer は srv を s に登録します。
func RegisterAttendanceServiceServer(s grpc.ServiceRegistrar, srv AttendanceServiceServer) {
	s.RegisterService(&AttendanceService_ServiceDesc, srv)
}

// AttendanceServiceClient は AttendanceService のクライアントです。
type AttendanceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAttendanceServiceClient は AttendanceServiceClient を生成します。
func NewAttendanceServiceClient(cc grpc.ClientConnInterface) *AttendanceServiceClient {
	return &AttendanceServiceClient{cc: cc}
}

// Call は method を Struct メッセージで呼び出します。method は Login などの短い名前です。
func (c *AttendanceServiceClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+AttendanceServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
