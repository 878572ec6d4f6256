// Package platform holds helpers shared by the fitness platform clients.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
)

// maxErrorBody bounds how much of an error response is kept in messages.
const maxErrorBody = 512

// StatusError classifies a non-2xx response:
// 401 wraps ErrUnauthorized, 408/429/5xx are transient, other codes are permanent.
// It drains and closes resp.Body.
func StatusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	msg := fmt.Sprintf("%s: HTTP %d", op, resp.StatusCode)
	if text := strings.TrimSpace(string(body)); text != "" {
		msg += ": " + text
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domainErrors.NewError(domainErrors.CodeTransient, msg, domainErrors.ErrUnauthorized)
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return domainErrors.NewError(domainErrors.CodeTransient, msg, nil)
	default:
		return domainErrors.NewError(domainErrors.CodePermanent, msg, nil)
	}
}

// TransportError classifies an error returned by http.Client.Do.
// Cancellation is passed through unchanged; anything else is transient.
func TransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domainErrors.NewError(domainErrors.CodeTransient, op+": request failed", err)
}

// DecodeError wraps a response that could not be parsed. These are permanent:
// retrying the same request returns the same body.
func DecodeError(op string, err error) error {
	return domainErrors.NewError(domainErrors.CodePermanent, op+": invalid response",
		fmt.Errorf("%w: %v", domainErrors.ErrPlatformResponse, err))
}

// IsSuccess reports whether the status code is 2xx.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}
