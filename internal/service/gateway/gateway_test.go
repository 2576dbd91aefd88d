package gateway

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const (
	bufSize     = 1024 * 1024
	testSecret  = "test-secret"
	testConsent = "urn:openfinance:ABCDEF123456"
)

type stubConsentServer struct {
	pixv1.UnimplementedConsentServiceServer

	mu        sync.Mutex
	consent   *pixv1.Consent
	getErr    error
	consumeFn func(id string) error
	delay     time.Duration
	md        []metadata.MD
}

func (s *stubConsentServer) GetConsent(ctx context.Context, req *pixv1.GetConsentRequest) (*pixv1.ConsentResponse, error) {
	s.capture(ctx)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.consent == nil || s.consent.ConsentId != req.ConsentId {
		return nil, status.Error(codes.NotFound, "consent not found")
	}
	return &pixv1.ConsentResponse{Data: s.consent}, nil
}

func (s *stubConsentServer) ConsumeConsent(ctx context.Context, req *pixv1.ConsumeConsentRequest) (*pixv1.ConsentResponse, error) {
	s.capture(ctx)
	if s.consumeFn != nil {
		if err := s.consumeFn(req.ConsentId); err != nil {
			return nil, err
		}
	}
	return &pixv1.ConsentResponse{Data: &pixv1.Consent{ConsentId: req.ConsentId, Status: "CONSUMED"}}, nil
}

func (s *stubConsentServer) capture(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	s.mu.Lock()
	s.md = append(s.md, md)
	s.mu.Unlock()
}

func (s *stubConsentServer) lastMetadata() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.md) == 0 {
		return nil
	}
	return s.md[len(s.md)-1]
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
}

func (m *recordingMetrics) RecordExternalCall(port, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, port+":"+result)
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func newRemote(t *testing.T, stub *stubConsentServer, timeout time.Duration) (*Remote, *recordingMetrics) {
	t.Helper()
	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	pixv1.RegisterConsentServiceServer(server, stub)
	go func() {
		_ = server.Serve(listener)
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	tokens, err := NewTokenSource(testSecret, "pix-payments", "pix-consents", time.Minute)
	require.NoError(t, err)
	metrics := &recordingMetrics{}
	remote := NewRemote(pixv1.NewConsentServiceClient(conn), tokens, RemoteConfig{Timeout: timeout, APIVersion: "5.0.0"}, metrics, loggerForTests())
	return remote, metrics
}

func authorisedConsent(now time.Time) *pixv1.Consent {
	return &pixv1.Consent{
		ConsentId:            testConsent,
		Status:               string(domain.ConsentStatusAuthorised),
		CreationDateTime:     now.Add(-time.Minute).Format(time.RFC3339),
		ExpirationDateTime:   now.Add(time.Hour).Format(time.RFC3339),
		StatusUpdateDateTime: now.Format(time.RFC3339),
		LoggedUser:           &pixv1.Document{Identification: "11111111111", Rel: "CPF"},
		Creditor:             &pixv1.Creditor{PersonType: "PESSOA_NATURAL", CpfCnpj: "22222222222", Name: "Maria"},
		Payment: &pixv1.PaymentIntent{
			Type:     "PIX",
			Amount:   "100.00",
			Currency: "BRL",
			Details: &pixv1.PaymentDetails{
				LocalInstrument: "DICT",
				Proxy:           "maria@example.com",
				CreditorAccount: &pixv1.Account{Ispb: "12345678", Issuer: "0001", Number: "123456", AccountType: "CACC"},
			},
		},
	}
}

func TestRemoteValidate_SendsCredentials(t *testing.T) {
	now := time.Now().UTC()
	stub := &stubConsentServer{consent: authorisedConsent(now)}
	remote, metrics := newRemote(t, stub, time.Second)

	consent, err := remote.Validate(context.Background(), testConsent)
	require.NoError(t, err)
	require.Equal(t, testConsent, consent.ID)
	require.Equal(t, "100.00", consent.Payment.Amount.String())

	md := stub.lastMetadata()
	require.NotNil(t, md)
	interaction := md.Get(pixv1.MetadataInteractionID)
	require.Len(t, interaction, 1)
	_, err = uuid.Parse(interaction[0])
	require.NoError(t, err)
	require.Equal(t, []string{"5.0.0"}, md.Get(pixv1.MetadataAPIVersion))

	auth := md.Get(pixv1.MetadataAuthorization)
	require.Len(t, auth, 1)
	require.Contains(t, auth[0], "Bearer ")
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(auth[0][len("Bearer "):], claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithAudience("pix-consents"))
	require.NoError(t, err)
	require.True(t, token.Valid)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	require.Equal(t, "pix-payments", sub)

	require.Equal(t, []string{"consent_gateway:ok"}, metrics.results)
}

func TestRemoteValidate_FailsClosed(t *testing.T) {
	now := time.Now().UTC()

	t.Run("not found", func(t *testing.T) {
		remote, _ := newRemote(t, &stubConsentServer{}, time.Second)
		_, err := remote.Validate(context.Background(), testConsent)
		require.ErrorIs(t, err, domain.ErrConsentNotFound)
	})

	t.Run("unavailable", func(t *testing.T) {
		stub := &stubConsentServer{getErr: status.Error(codes.Unavailable, "down")}
		remote, metrics := newRemote(t, stub, time.Second)
		_, err := remote.Validate(context.Background(), testConsent)
		require.ErrorIs(t, err, domain.ErrConsentNotFound)
		require.Equal(t, []string{"consent_gateway:error"}, metrics.results)
	})

	t.Run("timeout", func(t *testing.T) {
		stub := &stubConsentServer{consent: authorisedConsent(now), delay: 500 * time.Millisecond}
		remote, _ := newRemote(t, stub, 20*time.Millisecond)
		_, err := remote.Validate(context.Background(), testConsent)
		require.ErrorIs(t, err, domain.ErrConsentNotFound)
	})

	t.Run("malformed payload", func(t *testing.T) {
		consent := authorisedConsent(now)
		consent.Payment.Amount = "100"
		remote, _ := newRemote(t, &stubConsentServer{consent: consent}, time.Second)
		_, err := remote.Validate(context.Background(), testConsent)
		require.ErrorIs(t, err, domain.ErrConsentNotFound)
	})
}

func TestRemoteValidate_NotAuthorised(t *testing.T) {
	now := time.Now().UTC()
	consent := authorisedConsent(now)
	consent.Status = string(domain.ConsentStatusAwaitingAuthorisation)
	remote, _ := newRemote(t, &stubConsentServer{consent: consent}, time.Second)

	_, err := remote.Validate(context.Background(), testConsent)
	require.ErrorIs(t, err, domain.ErrConsentInvalid)
	var invalid *domain.ConsentInvalidError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, domain.ConsentStatusAwaitingAuthorisation, invalid.Status)
}

func TestRemoteValidate_ExpiredAuthorisation(t *testing.T) {
	now := time.Now().UTC()
	remote, _ := newRemote(t, &stubConsentServer{consent: authorisedConsent(now)}, time.Second)
	remote.now = func() time.Time { return now.Add(2 * time.Hour) }

	_, err := remote.Validate(context.Background(), testConsent)
	require.ErrorIs(t, err, domain.ErrConsentInvalid)
}

func TestRemoteConsume(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		var consumed []string
		stub := &stubConsentServer{consumeFn: func(id string) error {
			consumed = append(consumed, id)
			return nil
		}}
		remote, _ := newRemote(t, stub, time.Second)
		require.NoError(t, remote.Consume(context.Background(), testConsent))
		require.Equal(t, []string{testConsent}, consumed)
		require.NotEmpty(t, stub.lastMetadata().Get(pixv1.MetadataAuthorization))
	})

	t.Run("not found", func(t *testing.T) {
		stub := &stubConsentServer{consumeFn: func(string) error { return status.Error(codes.NotFound, "missing") }}
		remote, _ := newRemote(t, stub, time.Second)
		require.ErrorIs(t, remote.Consume(context.Background(), testConsent), domain.ErrConsentNotFound)
	})

	t.Run("not consumable", func(t *testing.T) {
		stub := &stubConsentServer{consumeFn: func(string) error { return status.Error(codes.FailedPrecondition, "rejected") }}
		remote, _ := newRemote(t, stub, time.Second)
		err := remote.Consume(context.Background(), testConsent)
		require.ErrorIs(t, err, domain.ErrConsentInvalid)
		require.False(t, domain.IsTransient(err))
	})

	t.Run("unavailable is transient", func(t *testing.T) {
		stub := &stubConsentServer{consumeFn: func(string) error { return status.Error(codes.Unavailable, "down") }}
		remote, _ := newRemote(t, stub, time.Second)
		err := remote.Consume(context.Background(), testConsent)
		require.ErrorIs(t, err, domain.ErrExternalValidation)
		require.True(t, domain.IsTransient(err))
	})
}

type stubValidator struct {
	consent domain.Consent
	err     error
}

func (s stubValidator) ValidateForPayment(context.Context, string) (domain.Consent, error) {
	return s.consent, s.err
}

func TestLocalValidate(t *testing.T) {
	local := NewLocal(stubValidator{consent: domain.Consent{ID: testConsent}})
	consent, err := local.Validate(context.Background(), testConsent)
	require.NoError(t, err)
	require.Equal(t, testConsent, consent.ID)

	local = NewLocal(stubValidator{err: domain.ErrConsentNotFound})
	_, err = local.Validate(context.Background(), testConsent)
	require.ErrorIs(t, err, domain.ErrConsentNotFound)
}

func TestNewTokenSourceRequiresSecret(t *testing.T) {
	_, err := NewTokenSource("", "svc", "", 0)
	require.Error(t, err)
}
