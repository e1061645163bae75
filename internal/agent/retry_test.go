package agent

import (
	"errors"
	"testing"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "rate limit", err: errors.New("429: rate limit exceeded"), want: true},
		{name: "quota", err: errors.New("Quota Exceeded for project"), want: true},
		{name: "server error", err: errors.New("HTTP 503 service unavailable"), want: true},
		{name: "timeout", err: errors.New("request timeout after 30s"), want: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "bad request", err: errors.New("400: invalid request payload"), want: false},
		{name: "auth failure", err: errors.New("401: API key not valid"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryableError(tt.err); got != tt.want {
				t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
