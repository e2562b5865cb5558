// Package exmo is the live EXMO REST client: signed requests with a
// persisted monotonic nonce, a sliding-window rate limiter with adaptive
// delay, bounded retries, and the limit-order place/poll/cancel lifecycle.
package exmo

import (
	"fmt"
	"strings"
)

// Kind classifies an API outcome for the retry policy. Outcomes are data:
// the call loop branches on Kind instead of matching error strings at
// every call site.
type Kind int

const (
	// KindOK means the call succeeded and the payload is usable.
	KindOK Kind = iota
	// KindRetryable covers timeouts, connection errors, 429, 5xx, and
	// business errors that hint at nonce or flood conditions.
	KindRetryable
	// KindRejected is an expected business refusal (insufficient funds,
	// below minimum). Retrying cannot help; it is not a failure of the
	// process either.
	KindRejected
	// KindFatal is a client bug or auth problem. Stop immediately.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRetryable:
		return "retryable"
	case KindRejected:
		return "rejected"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is the classified result of one HTTP exchange.
type Outcome struct {
	Kind       Kind
	HTTPStatus int
	APIError   string // the exchange's error string, if any
}

func (o Outcome) Error() string {
	return fmt.Sprintf("exmo: %s (http=%d, api=%q)", o.Kind, o.HTTPStatus, o.APIError)
}

// retryableHints are substrings of business error payloads that indicate
// a transient condition worth retrying with a fresh nonce.
var retryableHints = []string{"nonce", "flood", "too many", "try again"}

// classify maps an HTTP status and API error string to an Outcome.
func classify(status int, apiErr string) Outcome {
	o := Outcome{HTTPStatus: status, APIError: apiErr}
	switch {
	case status == 429 || status >= 500:
		o.Kind = KindRetryable
	case status == 401 || status == 403:
		o.Kind = KindFatal
	case apiErr != "":
		low := strings.ToLower(apiErr)
		o.Kind = KindRejected
		for _, h := range retryableHints {
			if strings.Contains(low, h) {
				o.Kind = KindRetryable
				break
			}
		}
	case status >= 400:
		o.Kind = KindFatal
	default:
		o.Kind = KindOK
	}
	return o
}
