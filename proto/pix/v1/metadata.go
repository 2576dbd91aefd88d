package pixv1

// Ключи gRPC metadata, которыми обмениваются клиенты и сервисы Pix.
const (
	MetadataAuthorization  = "authorization"
	MetadataInteractionID  = "x-fapi-interaction-id"
	MetadataAPIVersion     = "x-api-version"
	MetadataIdempotencyKey = "idempotency-key"
)
