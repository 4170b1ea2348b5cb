package httpx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", statusErr(429), true},
		{"server error wrapped", fmt.Errorf("call: %w", statusErr(503)), true},
		{"bad request", statusErr(400), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestBackoffCaps(t *testing.T) {
	if got := Backoff(time.Second, 0, 10*time.Second); got != time.Second {
		t.Fatalf("attempt 0: got=%s", got)
	}
	if got := Backoff(time.Second, 2, 10*time.Second); got != 4*time.Second {
		t.Fatalf("attempt 2: got=%s", got)
	}
	if got := Backoff(time.Second, 8, 10*time.Second); got != 10*time.Second {
		t.Fatalf("capped: got=%s", got)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
}
