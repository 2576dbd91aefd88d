//go:build tools

// Пакет tools фиксирует зависимости инструментов сборки.
// Контракт proto/pix/v1 поддерживается вручную и сериализуется через
// protojson-кодек, поэтому protoc-генераторы в сборке не участвуют.
// Для локальной отладки API достаточно grpcurl поверх reflection:
//
//	go install github.com/fullstorydev/grpcurl/cmd/grpcurl@latest
package tools
