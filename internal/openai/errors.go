package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
)

var (
	ErrAPIKeyNotSet = errors.New("OpenAI API key not set")
	// ErrRateLimited is returned once the client gave up retrying a 429.
	ErrRateLimited = errors.New("rate limited by the OpenAI API")
	// ErrUnavailable covers timeouts, network failures and 5xx answers.
	ErrUnavailable = errors.New("OpenAI API unavailable")
	// ErrRejected is a 4xx answer other than 408 and 429: retrying will not help.
	ErrRejected = errors.New("request rejected by the OpenAI API")
	// ErrInvalidResponseFormat is returned when a JSON completion cannot be parsed.
	ErrInvalidResponseFormat = errors.New("invalid response format")
)

func classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: status %d", ErrUnavailable, apiErr.StatusCode)
		default:
			return fmt.Errorf("%w: status %d: %s", ErrRejected, apiErr.StatusCode, apiErr.Message)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrInvalidResponseFormat) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryable reports whether a later attempt may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvalidResponseFormat)
}
