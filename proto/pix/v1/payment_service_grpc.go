package pixv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	PaymentService_CreatePayments_FullMethodName        = "/pix.v1.PaymentService/CreatePayments"
	PaymentService_GetPayment_FullMethodName            = "/pix.v1.PaymentService/GetPayment"
	PaymentService_CancelPayment_FullMethodName         = "/pix.v1.PaymentService/CancelPayment"
	PaymentService_ListPaymentsByConsent_FullMethodName = "/pix.v1.PaymentService/ListPaymentsByConsent"
)

// PaymentServiceClient — клиент платёжного сервиса.
type PaymentServiceClient interface {
	CreatePayments(ctx context.Context, in *CreatePaymentsRequest, opts ...grpc.CallOption) (*PaymentsResponse, error)
	GetPayment(ctx context.Context, in *GetPaymentRequest, opts ...grpc.CallOption) (*PaymentResponse, error)
	CancelPayment(ctx context.Context, in *CancelPaymentRequest, opts ...grpc.CallOption) (*PaymentResponse, error)
	ListPaymentsByConsent(ctx context.Context, in *ListPaymentsByConsentRequest, opts ...grpc.CallOption) (*PaymentsResponse, error)
}

type paymentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPaymentServiceClient создаёт клиента поверх соединения; вызовы идут JSON-кодеком.
func NewPaymentServiceClient(cc grpc.ClientConnInterface) PaymentServiceClient {
	return &paymentServiceClient{cc}
}

func (c *paymentServiceClient) CreatePayments(ctx context.Context, in *CreatePaymentsRequest, opts ...grpc.CallOption) (*PaymentsResponse, error) {
	out := new(PaymentsResponse)
	if err := c.cc.Invoke(ctx, PaymentService_CreatePayments_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *paymentServiceClient) GetPayment(ctx context.Context, in *GetPaymentRequest, opts ...grpc.CallOption) (*PaymentResponse, error) {
	out := new(PaymentResponse)
	if err := c.cc.Invoke(ctx, PaymentService_GetPayment_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *paymentServiceClient) CancelPayment(ctx context.Context, in *CancelPaymentRequest, opts ...grpc.CallOption) (*PaymentResponse, error) {
	out := new(PaymentResponse)
	if err := c.cc.Invoke(ctx, PaymentService_CancelPayment_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *paymentServiceClient) ListPaymentsByConsent(ctx context.Context, in *ListPaymentsByConsentRequest, opts ...grpc.CallOption) (*PaymentsResponse, error) {
	out := new(PaymentsResponse)
	if err := c.cc.Invoke(ctx, PaymentService_ListPaymentsByConsent_FullMethodName, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// PaymentServiceServer — серверная часть платёжного сервиса.
type PaymentServiceServer interface {
	CreatePayments(context.Context, *CreatePaymentsRequest) (*PaymentsResponse, error)
	GetPayment(context.Context, *GetPaymentRequest) (*PaymentResponse, error)
	CancelPayment(context.Context, *CancelPaymentRequest) (*PaymentResponse, error)
	ListPaymentsByConsent(context.Context, *ListPaymentsByConsentRequest) (*PaymentsResponse, error)
}

// UnimplementedPaymentServiceServer возвращает Unimplemented для всех методов.
type UnimplementedPaymentServiceServer struct{}

func (UnimplementedPaymentServiceServer) CreatePayments(context.Context, *CreatePaymentsRequest) (*PaymentsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CreatePayments not implemented")
}
func (UnimplementedPaymentServiceServer) GetPayment(context.Context, *GetPaymentRequest) (*PaymentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetPayment not implemented")
}
func (UnimplementedPaymentServiceServer) CancelPayment(context.Context, *CancelPaymentRequest) (*PaymentResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method CancelPayment not implemented")
}
func (UnimplementedPaymentServiceServer) ListPaymentsByConsent(context.Context, *ListPaymentsByConsentRequest) (*PaymentsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListPaymentsByConsent not implemented")
}

// RegisterPaymentServiceServer регистрирует реализацию на сервере.
func RegisterPaymentServiceServer(s grpc.ServiceRegistrar, srv PaymentServiceServer) {
	s.RegisterService(&PaymentService_ServiceDesc, srv)
}

func _PaymentService_CreatePayments_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreatePaymentsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServiceServer).CreatePayments(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PaymentService_CreatePayments_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServiceServer).CreatePayments(ctx, req.(*CreatePaymentsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PaymentService_GetPayment_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetPaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServiceServer).GetPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PaymentService_GetPayment_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServiceServer).GetPayment(ctx, req.(*GetPaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PaymentService_CancelPayment_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelPaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServiceServer).CancelPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PaymentService_CancelPayment_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServiceServer).CancelPayment(ctx, req.(*CancelPaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PaymentService_ListPaymentsByConsent_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListPaymentsByConsentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServiceServer).ListPaymentsByConsent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PaymentService_ListPaymentsByConsent_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(PaymentServiceServer).ListPaymentsByConsent(ctx, req.(*ListPaymentsByConsentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// PaymentService_ServiceDesc — описание сервиса для grpc.ServiceRegistrar.
var PaymentService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "pix.v1.PaymentService",
	HandlerType: (*PaymentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreatePayments", Handler: _PaymentService_CreatePayments_Handler},
		{MethodName: "GetPayment", Handler: _PaymentService_GetPayment_Handler},
		{MethodName: "CancelPayment", Handler: _PaymentService_CancelPayment_Handler},
		{MethodName: "ListPaymentsByConsent", Handler: _PaymentService_ListPaymentsByConsent_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pix/v1/pix_service.json",
}
