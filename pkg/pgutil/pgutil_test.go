package pgutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "", PoolOpts{}); !errors.Is(err, ErrNoDSN) {
		t.Fatalf("expected ErrNoDSN, got %v", err)
	}
}

func TestPoolDefaults(t *testing.T) {
	o := PoolOpts{}.withDefaults()
	if o != DefaultPool {
		t.Fatalf("expected defaults, got %+v", o)
	}

	o = PoolOpts{MaxOpen: 2, MaxIdle: 8, MaxLifetime: time.Second}.withDefaults()
	if o.MaxIdle != 2 || o.MaxLifetime != time.Second {
		t.Fatalf("idle must not exceed open: %+v", o)
	}
}
