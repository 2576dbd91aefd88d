package grpcsvc

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/versioning"
)

// ErrorDomain — домен в ErrorInfo ответов с ошибкой.
const ErrorDomain = "pix-initiation"

// Коды причин в errdetails.ErrorInfo.
const (
	ReasonNotFound              = "RECURSO_NAO_ENCONTRADO"
	ReasonConsentInvalid        = "CONSENTIMENTO_INVALIDO"
	ReasonInvalidStatus         = "STATUS_INVALIDO"
	ReasonCancellationForbidden = "PAGAMENTO_NAO_PERMITE_CANCELAMENTO"
	ReasonPaymentDetailInvalid  = "DETALHE_PAGAMENTO_INVALIDO"
	ReasonTemporaryFailure      = "ERRO_TEMPORARIO"
	ReasonIdempotencyInFlight   = "IDEMPOTENCIA_EM_PROCESSAMENTO"
	ReasonInvalidParameter      = "PARAMETRO_INVALIDO"
	ReasonMissingParameter      = "PARAMETRO_NAO_INFORMADO"
	ReasonUnsupportedVersion    = "VERSAO_NAO_SUPORTADA"
	ReasonVersionConflict       = "CONFLITO_DE_VERSAO"
	ReasonUnauthenticated       = "NAO_AUTENTICADO"
	ReasonInternal              = "ERRO_INTERNO"
)

// toStatus переводит доменную ошибку в gRPC status с ErrorInfo. Ошибки,
// уже являющиеся status, возвращаются как есть.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code, reason, meta := classify(err)
	msg := err.Error()
	if code == codes.Internal {
		msg = "internal error"
	}
	return statusWithReason(code, reason, msg, meta)
}

func statusWithReason(code codes.Code, reason, msg string, meta map[string]string) error {
	st := status.New(code, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   reason,
		Domain:   ErrorDomain,
		Metadata: meta,
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

func classify(err error) (codes.Code, string, map[string]string) {
	var (
		extErr     *domain.ExternalValidationError
		consentErr *domain.ConsentInvalidError
		cancelErr  *domain.CancellationNotAllowedError
		fieldErr   *domain.ValidationError
	)
	switch {
	case errors.As(err, &extErr):
		meta := map[string]string{"port": string(extErr.Port)}
		if extErr.Transient {
			return codes.Unavailable, ReasonTemporaryFailure, meta
		}
		reason := ReasonPaymentDetailInvalid
		if extErr.Code != "" {
			reason = extErr.Code
		}
		return codes.FailedPrecondition, reason, meta
	case errors.As(err, &consentErr):
		return codes.FailedPrecondition, ReasonConsentInvalid, map[string]string{
			"consent_id": consentErr.ConsentID,
			"status":     string(consentErr.Status),
		}
	case errors.As(err, &cancelErr):
		return codes.FailedPrecondition, ReasonCancellationForbidden, map[string]string{
			"payment_id": cancelErr.PaymentID,
			"status":     string(cancelErr.Status),
		}
	case domain.IsNotFound(err):
		return codes.NotFound, ReasonNotFound, nil
	case errors.Is(err, domain.ErrConsentInvalidTransition), errors.Is(err, domain.ErrPaymentInvalidTransition):
		return codes.FailedPrecondition, ReasonInvalidStatus, nil
	case errors.Is(err, domain.ErrIdempotencyInFlight), errors.Is(err, domain.ErrIdempotencyLeaseLost):
		return codes.Aborted, ReasonIdempotencyInFlight, nil
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return codes.InvalidArgument, ReasonMissingParameter, map[string]string{"field": "idempotency-key"}
	case errors.Is(err, versioning.ErrUnsupportedAPIVersion):
		return codes.InvalidArgument, ReasonUnsupportedVersion, nil
	case errors.As(err, &fieldErr):
		return codes.InvalidArgument, ReasonInvalidParameter, map[string]string{"field": fieldErr.Field}
	case errors.Is(err, domain.ErrInvalidRequest):
		return codes.InvalidArgument, ReasonInvalidParameter, nil
	case domain.IsVersionConflict(err):
		return codes.Aborted, ReasonVersionConflict, nil
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, ReasonTemporaryFailure, nil
	case errors.Is(err, context.Canceled):
		return codes.Canceled, ReasonTemporaryFailure, nil
	default:
		return codes.Internal, ReasonInternal, nil
	}
}

// ReasonFromError извлекает код причины из ErrorInfo статуса.
func ReasonFromError(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
