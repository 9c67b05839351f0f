package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/phrazzld/docsmith/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		severity Severity
	}{
		{"classified error", New(KindRateLimit, "slow down"), KindRateLimit, SeverityMedium},
		{"wrapped classified error", fmt.Errorf("call: %w", New(KindProvider, "bad gateway")), KindProvider, SeverityHigh},
		{"explicit severity", New(KindNetwork, "gone", WithSeverity(SeverityCritical)), KindNetwork, SeverityCritical},
		{"provider throttling", genai.APIError{Code: 429, Message: "quota"}, KindRateLimit, SeverityMedium},
		{"provider outage", fmt.Errorf("generate: %w", genai.APIError{Code: 503}), KindProvider, SeverityHigh},
		{"provider outage by pointer", &genai.APIError{Code: 500}, KindProvider, SeverityHigh},
		{"token limit", genai.APIError{Code: 400, Message: "input token count exceeds the maximum"}, KindTokenLimit, SeverityMedium},
		{"provider rejection", genai.APIError{Code: 404, Message: "model not found"}, KindRejected, SeverityHigh},
		{"provider timeout", genai.APIError{Code: 408}, KindNetwork, SeverityMedium},
		{"deadline", fmt.Errorf("handler: %w", context.DeadlineExceeded), KindNetwork, SeverityMedium},
		{"cancelled", context.Canceled, KindSystem, SeverityLow},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindNetwork, SeverityMedium},
		{"oversized cost", fmt.Errorf("acquire: %w", ratelimit.ErrCostExceedsBudget), KindTokenLimit, SeverityMedium},
		{"plain error", errors.New("template missing"), KindUnknown, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Classify(tt.err)
			assert.False(t, o.Success)
			assert.Equal(t, tt.kind, o.Kind)
			assert.Equal(t, tt.severity, o.Severity)
			assert.Equal(t, tt.err, o.Err)
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestClassifyNil(t *testing.T) {
	assert.Equal(t, Succeeded, Classify(nil))
	assert.True(t, Classify(nil).Success)
}

func TestClassifyEmptySeverityUsesKindDefault(t *testing.T) {
	o := Classify(&Error{Kind: KindSystem, Message: "disk"})
	assert.Equal(t, SeverityCritical, o.Severity)
}
