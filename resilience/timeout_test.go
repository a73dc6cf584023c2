package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Default(t *testing.T) {
	if got := NewTimeout(TimeoutConfig{}).Config().Timeout; got != 15*time.Second {
		t.Errorf("default timeout = %v, want 15s", got)
	}
}

func TestTimeout_Execute(t *testing.T) {
	opErr := errors.New("bad request")

	tests := []struct {
		name    string
		op      func(ctx context.Context) error
		wantErr error
	}{
		{name: "fast success", op: func(context.Context) error { return nil }},
		{name: "error passes through", op: func(context.Context) error { return opErr }, wantErr: opErr},
		{
			name: "slow op times out",
			op: func(ctx context.Context) error {
				select {
				case <-time.After(time.Second):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
			wantErr: ErrTimeout,
		},
		{
			name:    "op returning deadline exceeded maps to ErrTimeout",
			op:      func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
			wantErr: ErrTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to := NewTimeout(TimeoutConfig{Timeout: 20 * time.Millisecond})
			err := to.Execute(context.Background(), tt.op)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Execute() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ExecuteWithTimeout(ctx, time.Second, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}
