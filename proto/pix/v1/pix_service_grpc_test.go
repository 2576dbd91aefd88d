package pixv1

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

type fakeClientConn struct {
	invoke func(context.Context, string, any, any, ...grpc.CallOption) error
}

func (f *fakeClientConn) Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error {
	if f.invoke == nil {
		return errors.New("unexpected Invoke call")
	}
	return f.invoke(ctx, method, args, reply, opts...)
}

func (f *fakeClientConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not implemented")
}

func TestConsentServiceClientMethods(t *testing.T) {
	methods := map[string]int{}
	conn := &fakeClientConn{
		invoke: func(_ context.Context, method string, _ any, reply any, opts ...grpc.CallOption) error {
			methods[method]++
			if len(opts) == 0 {
				t.Fatalf("expected content subtype call option for %s", method)
			}
			out, ok := reply.(*ConsentResponse)
			if !ok {
				t.Fatalf("unexpected reply type: %T", reply)
			}
			out.Data = &Consent{ConsentId: "urn:openfinance:ABC"}
			return nil
		},
	}
	client := NewConsentServiceClient(conn)
	ctx := context.Background()

	calls := []func() (*ConsentResponse, error){
		func() (*ConsentResponse, error) { return client.CreateConsent(ctx, &CreateConsentRequest{}) },
		func() (*ConsentResponse, error) { return client.GetConsent(ctx, &GetConsentRequest{ConsentId: "c"}) },
		func() (*ConsentResponse, error) { return client.AuthorizeConsent(ctx, &AuthorizeConsentRequest{ConsentId: "c"}) },
		func() (*ConsentResponse, error) { return client.RejectConsent(ctx, &RejectConsentRequest{ConsentId: "c"}) },
		func() (*ConsentResponse, error) { return client.ConsumeConsent(ctx, &ConsumeConsentRequest{ConsentId: "c"}) },
	}
	for _, call := range calls {
		resp, err := call()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Data.ConsentId != "urn:openfinance:ABC" {
			t.Fatalf("unexpected consent id: %s", resp.Data.ConsentId)
		}
	}
	if len(methods) != len(ConsentService_ServiceDesc.Methods) {
		t.Fatalf("expected %d distinct methods, got %v", len(ConsentService_ServiceDesc.Methods), methods)
	}
}

func TestPaymentServiceClientPropagatesErrors(t *testing.T) {
	conn := &fakeClientConn{
		invoke: func(context.Context, string, any, any, ...grpc.CallOption) error {
			return status.Error(codes.Unavailable, "down")
		},
	}
	client := NewPaymentServiceClient(conn)
	ctx := context.Background()

	if _, err := client.CreatePayments(ctx, &CreatePaymentsRequest{}); status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if _, err := client.GetPayment(ctx, &GetPaymentRequest{}); status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if _, err := client.CancelPayment(ctx, &CancelPaymentRequest{}); status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if _, err := client.ListPaymentsByConsent(ctx, &ListPaymentsByConsentRequest{}); status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestUnimplementedServers(t *testing.T) {
	ctx := context.Background()
	var consent UnimplementedConsentServiceServer
	if _, err := consent.GetConsent(ctx, &GetConsentRequest{}); status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
	var payment UnimplementedPaymentServiceServer
	if _, err := payment.GetPayment(ctx, &GetPaymentRequest{}); status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	if codec == nil {
		t.Fatal("json codec must be registered")
	}

	in := &PaymentsResponse{Data: []*Payment{{PaymentId: "p1", Amount: "10.00", Status: "ACSC"}}}
	body, err := codec.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := &PaymentsResponse{}
	if err := codec.Unmarshal(body, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].PaymentId != "p1" || out.Data[0].Amount != "10.00" {
		t.Fatalf("unexpected decoded value: %+v", out.Data)
	}
}

func TestCodecUsesProtojsonForProtoMessages(t *testing.T) {
	codec := Codec{}
	body, err := codec.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out healthpb.HealthCheckResponse
	if err := codec.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %v", out.GetStatus())
	}
}
