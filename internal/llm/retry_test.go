package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type scriptedProvider struct {
	errs  []error
	calls int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(context.Context, Request) (*Response, error) {
	p.calls++
	if p.calls <= len(p.errs) && p.errs[p.calls-1] != nil {
		return nil, p.errs[p.calls-1]
	}
	return &Response{Text: "ok"}, nil
}

func newTestRetrying(t *testing.T, inner Provider, maxRetries int) (*Retrying, *[]time.Duration) {
	t.Helper()
	var slept []time.Duration
	r := WithRetry(inner, maxRetries, zaptest.NewLogger(t)).(*Retrying)
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func TestRetryRecoversFromRateLimit(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		&ProviderError{StatusCode: 429},
		&ProviderError{StatusCode: 529},
	}}
	r, slept := newTestRetrying(t, inner, 2)

	response, err := r.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if response.Text != "ok" || inner.calls != 3 {
		t.Errorf("text=%q calls=%d", response.Text, inner.calls)
	}
	if len(*slept) != 2 || (*slept)[0] != 500*time.Millisecond || (*slept)[1] != time.Second {
		t.Errorf("backoff = %v, want [500ms 1s]", *slept)
	}
}

func TestRetryGivesUp(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
	}{
		{"exhausted", []error{&ProviderError{StatusCode: 429}, &ProviderError{StatusCode: 429}, &ProviderError{StatusCode: 429}}, 3},
		{"client error", []error{&ProviderError{StatusCode: 400}}, 1},
		{"transport error", []error{errors.New("connection reset")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedProvider{errs: tt.errs}
			r, _ := newTestRetrying(t, inner, 2)

			if _, err := r.Complete(context.Background(), Request{}); err == nil {
				t.Fatal("expected error")
			}
			if inner.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", inner.calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryHonorsContext(t *testing.T) {
	inner := &scriptedProvider{errs: []error{&ProviderError{StatusCode: 503}}}
	r := WithRetry(inner, 3, nil).(*Retrying)
	r.BaseDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Complete(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestWithRetryZeroIsPassthrough(t *testing.T) {
	inner := &scriptedProvider{}
	if got := WithRetry(inner, 0, nil); got != Provider(inner) {
		t.Errorf("WithRetry(0) = %T, want the inner provider", got)
	}
}

func TestNewRequiresKeyAndKnownProvider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "anthropic"}, nil); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := New(context.Background(), Config{Provider: "openai", APIKey: "k"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	p, err := New(context.Background(), Config{Provider: "anthropic", APIKey: "k", MaxRetries: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name() = %q", p.Name())
	}
}
