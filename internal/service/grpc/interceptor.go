package grpcsvc

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const apiMethodPrefix = "/pix.v1."

type callerKey struct{}

// Caller — сведения о вызывающей стороне. Подпись токена проверяется шлюзом
// перед сервисом, здесь claims только читаются.
type Caller struct {
	Subject       string
	InteractionID string
}

// CallerFromContext возвращает Caller, сохранённый interceptor'ом.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}

// InterceptorConfig настраивает RequestInterceptor.
type InterceptorConfig struct {
	// RequireAuth отклоняет вызовы API без bearer-токена.
	RequireAuth bool
}

// RequestInterceptor присваивает запросу x-fapi-interaction-id, разбирает
// bearer-токен и пишет итог вызова в лог. Health и reflection пропускаются.
func RequestInterceptor(cfg InterceptorConfig, logger *log.Entry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.WithField("component", "grpc-server")
	}
	parser := jwt.NewParser()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, apiMethodPrefix) {
			return handler(ctx, req)
		}

		started := time.Now()
		interactionID := incomingValue(ctx, pixv1.MetadataInteractionID)
		if interactionID == "" {
			interactionID = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(pixv1.MetadataInteractionID, interactionID))

		entry := logger.WithFields(log.Fields{
			"method":         info.FullMethod,
			"interaction_id": interactionID,
		})

		caller := Caller{InteractionID: interactionID}
		if raw := incomingValue(ctx, pixv1.MetadataAuthorization); raw != "" {
			token, found := strings.CutPrefix(raw, "Bearer ")
			if !found {
				return nil, statusWithReason(codes.Unauthenticated, ReasonUnauthenticated, "authorization must be a bearer token", nil)
			}
			claims := &jwt.RegisteredClaims{}
			if _, _, err := parser.ParseUnverified(strings.TrimSpace(token), claims); err != nil {
				entry.WithError(err).Debug("malformed bearer token")
				return nil, statusWithReason(codes.Unauthenticated, ReasonUnauthenticated, "malformed bearer token", nil)
			}
			caller.Subject = claims.Subject
		} else if cfg.RequireAuth {
			return nil, statusWithReason(codes.Unauthenticated, ReasonUnauthenticated, "authorization metadata is required", nil)
		}
		if caller.Subject != "" {
			entry = entry.WithField("subject", caller.Subject)
		}

		resp, err := handler(context.WithValue(ctx, callerKey{}, caller), req)

		code := status.Code(err)
		entry = entry.WithFields(log.Fields{
			"code":     code.String(),
			"duration": time.Since(started),
		})
		switch code {
		case codes.OK:
			entry.Debug("request completed")
		case codes.Internal, codes.Unknown:
			entry.WithError(err).Error("request failed")
		default:
			entry.WithError(err).Info("request rejected")
		}
		return resp, err
	}
}

func incomingValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(key) {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
