package costbasis

import (
	"context"
	"testing"
	"time"
)

func TestKeyedLock_Exclusive(t *testing.T) {
	k := NewKeyedLock()
	key := btc.Key("alice")

	release, err := k.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, ok := k.TryAcquire(key); ok {
		t.Errorf("TryAcquire() succeeded while the lock is held")
	}

	release()
	r2, ok := k.TryAcquire(key)
	if !ok {
		t.Fatalf("TryAcquire() failed after release")
	}
	r2()
}

func TestKeyedLock_IndependentKeys(t *testing.T) {
	k := NewKeyedLock()
	r1, err := k.Acquire(context.Background(), btc.Key("alice"))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer r1()

	// A different owner of the same asset locks independently.
	r2, ok := k.TryAcquire(btc.Key("bob"))
	if !ok {
		t.Fatalf("bob's key blocked by alice's lock")
	}
	r2()
}

func TestKeyedLock_AcquireHonorsContext(t *testing.T) {
	k := NewKeyedLock()
	key := btc.Key("alice")
	release, _ := k.Acquire(context.Background(), key)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Acquire(ctx, key); err == nil {
		t.Fatalf("Acquire() on a held lock returned before ctx expiry")
	}
}
