package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	AccountErrorDuplicateToken      = "ACCOUNT_TOKEN_DUPLICATE"
	AccountErrorUnknownToken        = "ACCOUNT_TOKEN_UNKNOWN"
	AccountErrorAccessDenied        = "ACCOUNT_ACCESS_DENIED"
	AccountErrorMissingCredentials  = "ACCOUNT_MISSING_CREDENTIALS"
	AccountErrorMissingRefreshToken = "ACCOUNT_MISSING_REFRESH_TOKEN"
	AccountErrorInvalidResponseType = "ACCOUNT_INVALID_RESPONSE_TYPE"
	AccountErrorInvalidJSON         = "ACCOUNT_INVALID_JSON"
	AccountErrorProvider            = "ACCOUNT_PROVIDER_ERROR"
	AccountErrorBadInput            = "ACCOUNT_BAD_INPUT"
	AccountErrorInternal            = "ACCOUNT_INTERNAL_ERROR"
)

func NewDuplicateTokenError(token string) *goerrors.Error {
	return newAccountError("correlation token already exists: "+token, goerrors.CategoryConflict, AccountErrorDuplicateToken)
}

func NewUnknownTokenError(token string) *goerrors.Error {
	return newAccountError("correlation token not found: "+token, goerrors.CategoryNotFound, AccountErrorUnknownToken)
}

func NewAccessDeniedError() *goerrors.Error {
	return newAccountError("access denied", goerrors.CategoryAuth, AccountErrorAccessDenied)
}

func NewMissingCredentialsError() *goerrors.Error {
	return newAccountError("no access token specified", goerrors.CategoryAuth, AccountErrorMissingCredentials)
}

func NewMissingRefreshTokenError() *goerrors.Error {
	return newAccountError("no refresh token specified", goerrors.CategoryAuth, AccountErrorMissingRefreshToken)
}

func NewInvalidResponseTypeError(contentType string) *goerrors.Error {
	message := "invalid response type"
	if strings.TrimSpace(contentType) != "" {
		message += ": " + strings.TrimSpace(contentType)
	}
	return newAccountError(message, goerrors.CategoryExternal, AccountErrorInvalidResponseType)
}

func NewInvalidJSONError(cause error) *goerrors.Error {
	if cause == nil {
		return newAccountError("invalid response JSON", goerrors.CategoryExternal, AccountErrorInvalidJSON)
	}
	return ensureAccountErrorEnvelope(
		goerrors.Wrap(cause, goerrors.CategoryExternal, "invalid response JSON").
			WithTextCode(AccountErrorInvalidJSON),
	)
}

// NewProviderError wraps a non-2xx provider response body, keeping the raw
// payload and status available to the caller.
func NewProviderError(statusCode int, body []byte) *goerrors.Error {
	message := strings.TrimSpace(string(body))
	if message == "" {
		message = "provider request failed"
	}
	err := newAccountError(message, goerrors.CategoryExternal, AccountErrorProvider)
	err.Code = statusCode
	return err.WithMetadata(map[string]any{
		"status_code": statusCode,
	})
}

func IsDuplicateToken(err error) bool { return hasTextCode(err, AccountErrorDuplicateToken) }

func IsUnknownToken(err error) bool { return hasTextCode(err, AccountErrorUnknownToken) }

func IsAccessDenied(err error) bool { return hasTextCode(err, AccountErrorAccessDenied) }

func IsMissingCredentials(err error) bool { return hasTextCode(err, AccountErrorMissingCredentials) }

func IsMissingRefreshToken(err error) bool { return hasTextCode(err, AccountErrorMissingRefreshToken) }

func IsInvalidResponseType(err error) bool { return hasTextCode(err, AccountErrorInvalidResponseType) }

func IsInvalidJSON(err error) bool { return hasTextCode(err, AccountErrorInvalidJSON) }

func IsProviderError(err error) bool { return hasTextCode(err, AccountErrorProvider) }

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

// NormalizeResponseError is the default response-error policy shared by both
// flows: transport errors pass through unchanged, anything below 300 is
// success, everything else wraps the provider's raw payload.
func NormalizeResponseError(err error, res *Response) error {
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	if res.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	return NewProviderError(res.StatusCode, res.Body)
}

func newAccountError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureAccountErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func accountErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureAccountErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "token already exists"):
		return newAccountError(err.Error(), goerrors.CategoryConflict, AccountErrorDuplicateToken)
	case strings.Contains(msg, "token not found"), strings.Contains(msg, "token doesn't exist"):
		return newAccountError(err.Error(), goerrors.CategoryNotFound, AccountErrorUnknownToken)
	case strings.Contains(msg, "access denied"):
		return newAccountError(err.Error(), goerrors.CategoryAuth, AccountErrorAccessDenied)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newAccountError(err.Error(), goerrors.CategoryBadInput, AccountErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureAccountErrorEnvelope(mapped)
}

func ensureAccountErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = accountHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultAccountTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultAccountTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return AccountErrorBadInput
	case goerrors.CategoryNotFound:
		return AccountErrorUnknownToken
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return AccountErrorAccessDenied
	case goerrors.CategoryConflict:
		return AccountErrorDuplicateToken
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return AccountErrorProvider
	default:
		return AccountErrorInternal
	}
}

func accountHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation, goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
