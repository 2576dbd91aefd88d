package pixv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ConsentService_CreateConsent_FullMethodName    = "/pix.v1.ConsentService/CreateConsent"
	ConsentService_GetConsent_FullMethodName       = "/pix.v1.ConsentService/GetConsent"
	ConsentService_AuthorizeConsent_FullMethodName = "/pix.v1.ConsentService/AuthorizeConsent"
	ConsentService_RejectConsent_FullMethodName    = "/pix.v1.ConsentService/RejectConsent"
	ConsentService_ConsumeConsent_FullMethodName   = "/pix.v1.ConsentService/ConsumeConsent"
)

// ConsentServiceClient — клиент сервиса согласий.
type ConsentServiceClient interface {
	CreateConsent(ctx context.Context, in *CreateConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error)
	GetConsent(ctx context.Context, in *GetConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error)
	AuthorizeConsent(ctx context.Context, in *AuthorizeConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error)
	RejectConsent(ctx context.Context, in *RejectConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error)
	ConsumeConsent(ctx context.Context, in *ConsumeConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error)
}

type consentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewConsentServiceClient создаёт клиента поверх соединения; вызовы идут JSON-кодеком.
func NewConsentServiceClient(cc grpc.ClientConnInterface) ConsentServiceClient {
	return &consentServiceClient{cc}
}

func (c *consentServiceClient) CreateConsent(ctx context.Context, in *CreateConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error) {
	out := new(ConsentResponse)
	if err := c.cc.Invoke(ctx, ConsentService_CreateConsent_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *consentServiceClient) GetConsent(ctx context.Context, in *GetConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error) {
	out := new(ConsentResponse)
	if err := c.cc.Invoke(ctx, ConsentService_GetConsent_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *consentServiceClient) AuthorizeConsent(ctx context.Context, in *AuthorizeConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error) {
	out := new(ConsentResponse)
	if err := c.cc.Invoke(ctx, ConsentService_AuthorizeConsent_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *consentServiceClient) RejectConsent(ctx context.Context, in *RejectConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error) {
	out := new(ConsentResponse)
	if err := c.cc.Invoke(ctx, ConsentService_RejectConsent_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *consentServiceClient) ConsumeConsent(ctx context.Context, in *ConsumeConsentRequest, opts ...grpc.CallOption) (*ConsentResponse, error) {
	out := new(ConsentResponse)
	if err := c.cc.Invoke(ctx, ConsentService_ConsumeConsent_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// ConsentServiceServer — серверная часть сервиса согласий.
type ConsentServiceServer interface {
	CreateConsent(context.Context, *CreateConsentRequest) (*ConsentResponse, error)
	GetConsent(context.Context, *GetConsentRequest) (*ConsentResponse, error)
	AuthorizeConsent(context.Context, *AuthorizeConsentRequest) (*ConsentResponse, error)
	RejectConsent(context.Context, *RejectConsentRequest) (*ConsentResponse, error)
	ConsumeConsent(context.Context, *ConsumeConsentRequest) (*ConsentResponse, error)
}

// UnimplementedConsentServiceServer возвращает Unimplemented для всех методов.
type UnimplementedConsentServiceServer struct{}

func (UnimplementedConsentServiceServer) CreateConsent(context.Context, *CreateConsentRequest) (*ConsentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreateConsent not implemented")
}
func (UnimplementedConsentServiceServer) GetConsent(context.Context, *GetConsentRequest) (*ConsentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetConsent not implemented")
}
func (UnimplementedConsentServiceServer) AuthorizeConsent(context.Context, *AuthorizeConsentRequest) (*ConsentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method AuthorizeConsent not implemented")
}
func (UnimplementedConsentServiceServer) RejectConsent(context.Context, *RejectConsentRequest) (*ConsentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method RejectConsent not implemented")
}
func (UnimplementedConsentServiceServer) ConsumeConsent(context.Context, *ConsumeConsentRequest) (*ConsentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ConsumeConsent not implemented")
}

// RegisterConsentServiceServer регистрирует реализацию на сервере.
func RegisterConsentServiceServer(s grpc.ServiceRegistrar, srv ConsentServiceServer) {
	s.RegisterService(&ConsentService_ServiceDesc, srv)
}

func _ConsentService_CreateConsent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateConsentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsentServiceServer).CreateConsent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ConsentService_CreateConsent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsentServiceServer).CreateConsent(ctx, req.(*CreateConsentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ConsentService_GetConsent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetConsentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsentServiceServer).GetConsent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ConsentService_GetConsent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsentServiceServer).GetConsent(ctx, req.(*GetConsentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ConsentService_AuthorizeConsent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AuthorizeConsentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsentServiceServer).AuthorizeConsent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ConsentService_AuthorizeConsent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsentServiceServer).AuthorizeConsent(ctx, req.(*AuthorizeConsentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ConsentService_RejectConsent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RejectConsentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsentServiceServer).RejectConsent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ConsentService_RejectConsent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsentServiceServer).RejectConsent(ctx, req.(*RejectConsentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ConsentService_ConsumeConsent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ConsumeConsentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsentServiceServer).ConsumeConsent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ConsentService_ConsumeConsent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsentServiceServer).ConsumeConsent(ctx, req.(*ConsumeConsentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ConsentService_ServiceDesc — описание сервиса для grpc.ServiceRegistrar.
var ConsentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "pix.v1.ConsentService",
	HandlerType: (*ConsentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateConsent", Handler: _ConsentService_CreateConsent_Handler},
		{MethodName: "GetConsent", Handler: _ConsentService_GetConsent_Handler},
		{MethodName: "AuthorizeConsent", Handler: _ConsentService_AuthorizeConsent_Handler},
		{MethodName: "RejectConsent", Handler: _ConsentService_RejectConsent_Handler},
		{MethodName: "ConsumeConsent", Handler: _ConsentService_ConsumeConsent_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pix/v1/pix_service.json",
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
