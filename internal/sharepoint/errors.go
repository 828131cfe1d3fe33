// Package sharepoint is a small client for the SharePoint REST API
// (/_api/web/...) with automatic retry, throttling support and error
// classification. It covers exactly the calls the mirror needs: site
// identity, folder listing, file download, move, delete and folder creation.
package sharepoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status classification.
// Use errors.Is(err, sharepoint.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("sharepoint: bad request")
	ErrUnauthorized = errors.New("sharepoint: unauthorized")
	ErrForbidden    = errors.New("sharepoint: forbidden")
	ErrNotFound     = errors.New("sharepoint: not found")
	ErrConflict     = errors.New("sharepoint: conflict")
	ErrThrottled    = errors.New("sharepoint: throttled")
	ErrLocked       = errors.New("sharepoint: resource locked")
	ErrServerError  = errors.New("sharepoint: server error")

	// ErrAuthentication matches any failure to obtain a bearer token.
	ErrAuthentication = errors.New("sharepoint: authentication failed")
)

// APIError carries the HTTP status, the SharePoint correlation ID and the
// server's error message, and unwraps to a sentinel.
type APIError struct {
	StatusCode int
	RequestID  string
	Code       string // SharePoint error code, e.g. "-2147024894, System.IO.FileNotFoundException"
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("sharepoint: HTTP %d (correlation-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("sharepoint: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// odataError matches both the JSON light ("odata.error") and verbose
// ("error") error envelopes.
type odataError struct {
	Light   *odataErrorBody `json:"odata.error"` //nolint:tagliatelle // OData envelope key
	Verbose *odataErrorBody `json:"error"`
}

type odataErrorBody struct {
	Code    string `json:"code"`
	Message struct {
		Value string `json:"value"`
	} `json:"message"`
}

// newAPIError builds an APIError from a failed response. The body's OData
// message is used when present, otherwise the raw body.
func newAPIError(status int, requestID string, body []byte) *APIError {
	e := &APIError{
		StatusCode: status,
		RequestID:  requestID,
		Message:    string(body),
		Err:        classifyStatus(status),
	}

	var env odataError
	if json.Unmarshal(body, &env) == nil {
		b := env.Light
		if b == nil {
			b = env.Verbose
		}

		if b != nil && b.Message.Value != "" {
			e.Code = b.Code
			e.Message = b.Message.Value
		}
	}

	return e
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		// 509 Bandwidth Limit Exceeded is SharePoint-specific throttling.
		const statusBandwidthExceeded = 509
		return code == statusBandwidthExceeded
	}
}
