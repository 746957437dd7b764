package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind классифицирует ошибку провайдера.
type ErrorKind int

const (
	ErrKindUnknown ErrorKind = iota
	ErrKindUnauthorized
	ErrKindRateLimited
	ErrKindMalformed
	ErrKindToolsNotSupported
	ErrKindNetwork
	ErrKindTimeout
)

// String возвращает строковое представление типа ошибки.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindUnauthorized:
		return "unauthorized"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindMalformed:
		return "malformed"
	case ErrKindToolsNotSupported:
		return "tools_not_supported"
	case ErrKindNetwork:
		return "network_error"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Сентинелы для errors.Is. *ProviderError матчится с сентинелом своего Kind.
var (
	ErrUnauthorized      = errors.New("provider: unauthorized")
	ErrRateLimited       = errors.New("provider: rate limited")
	ErrMalformed         = errors.New("provider: malformed response")
	ErrToolsNotSupported = errors.New("provider: tools not supported")
	ErrNetwork           = errors.New("provider: network error")
	ErrTimeout           = errors.New("provider: timeout")
	ErrUnknown           = errors.New("provider: unknown error")
)

// ErrEmptyResponse — провайдер не вернул ни одного варианта ответа.
var ErrEmptyResponse = errors.New("no choices in response")

// ProviderError — ошибка Provider Adapter без деталей транспорта в control flow.
//
// Err хранит исходную ошибку для логов, но решения принимаются только по Kind.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Err        error
}

// NewProviderError создаёт ProviderError.
func NewProviderError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s provider error (%s)", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap возвращает исходную ошибку.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is матчит сентинел по Kind.
func (e *ProviderError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k ErrorKind) sentinel() error {
	switch k {
	case ErrKindUnauthorized:
		return ErrUnauthorized
	case ErrKindRateLimited:
		return ErrRateLimited
	case ErrKindMalformed:
		return ErrMalformed
	case ErrKindToolsNotSupported:
		return ErrToolsNotSupported
	case ErrKindNetwork:
		return ErrNetwork
	case ErrKindTimeout:
		return ErrTimeout
	default:
		return ErrUnknown
	}
}

// ClassifyStatus переводит HTTP статус в ErrorKind.
func ClassifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrKindUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrKindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return ErrKindTimeout
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return ErrKindMalformed
	case code >= 500:
		return ErrKindNetwork
	default:
		return ErrKindUnknown
	}
}

// ClassifyTransportError определяет тип ошибки транспорта (без HTTP статуса).
func ClassifyTransportError(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrKindTimeout
		}
		return ErrKindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrKindNetwork
	}
	return ErrKindUnknown
}

// WrapError приводит произвольную ошибку адаптера к *ProviderError.
//
// Уже классифицированные ошибки возвращаются как есть.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Kind: ClassifyTransportError(err), Provider: provider, Err: err}
}

// AsProviderError извлекает *ProviderError из цепочки.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
