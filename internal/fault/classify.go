package fault

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/phrazzld/docsmith/internal/ratelimit"
	"google.golang.org/genai"
)

// Outcome is the result of one attempt, reduced to what the retry policy
// needs.
type Outcome struct {
	Success  bool
	Kind     Kind
	Severity Severity
	Err      error
}

// Succeeded is the Outcome of an attempt that returned no error.
var Succeeded = Outcome{Success: true}

// Classify maps err onto the taxonomy. Explicitly classified errors keep
// their kind; provider API errors are mapped by status code; everything else
// is inferred from well-known error types and falls back to unknown.
func Classify(err error) Outcome {
	if err == nil {
		return Succeeded
	}

	var fe *Error
	if errors.As(err, &fe) {
		sev := fe.Severity
		if sev == "" {
			sev = fe.Kind.DefaultSeverity()
		}
		return Outcome{Kind: fe.Kind, Severity: sev, Err: err}
	}

	kind, sev := infer(err)
	return Outcome{Kind: kind, Severity: sev, Err: err}
}

func infer(err error) (Kind, Severity) {
	if code, msg, ok := apiError(err); ok {
		k := kindForStatus(code, msg)
		return k, k.DefaultSeverity()
	}

	switch {
	case errors.Is(err, ratelimit.ErrCostExceedsBudget):
		return KindTokenLimit, KindTokenLimit.DefaultSeverity()
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork, SeverityMedium
	case errors.Is(err, context.Canceled):
		return KindSystem, SeverityLow
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork, KindNetwork.DefaultSeverity()
	}

	return KindUnknown, KindUnknown.DefaultSeverity()
}

func apiError(err error) (int, string, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code, v.Message, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p.Code, p.Message, true
	}
	return 0, "", false
}

// kindForStatus classifies an HTTP status returned by a provider.
func kindForStatus(code int, message string) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusRequestTimeout:
		return KindNetwork
	case code >= 500:
		return KindProvider
	case code == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "token"):
		return KindTokenLimit
	case code >= 400:
		return KindRejected
	default:
		return KindUnknown
	}
}
