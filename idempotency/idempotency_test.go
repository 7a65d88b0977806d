package idempotency_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/invoiceflow/billing/idempotency"
	"github.com/invoiceflow/billing/idempotency/memory"
)

func TestRegisterRunsProducerOnce(t *testing.T) {
	reg := idempotency.New(memory.New())
	var calls int32

	producer := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "inv_1", nil
	}

	id1, isNew1, err := reg.Register(context.Background(), "k1", "invoice", "", nil, idempotency.WaitForWinner, producer)
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if !isNew1 || id1 != "inv_1" {
		t.Fatalf("first Register: got (%q, %v), want (inv_1, true)", id1, isNew1)
	}

	id2, isNew2, err := reg.Register(context.Background(), "k1", "invoice", "", nil, idempotency.WaitForWinner, producer)
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if isNew2 || id2 != "inv_1" {
		t.Fatalf("second Register: got (%q, %v), want (inv_1, false)", id2, isNew2)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("producer invoked %d times, want 1", got)
	}
}

func TestRegisterConcurrentCallersSerialized(t *testing.T) {
	reg := idempotency.New(memory.New())
	var calls int32
	const n = 20

	producer := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return "pay_1", nil
	}

	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _, errs[i] = reg.Register(context.Background(), "shared-key", "payment", "", nil, idempotency.WaitForWinner, producer)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
		if ids[i] != "pay_1" {
			t.Errorf("goroutine %d: got id %q, want pay_1", i, ids[i])
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("producer invoked %d times across %d concurrent callers, want 1", got, n)
	}
}

func TestRegisterProducerFailureReleasesKey(t *testing.T) {
	reg := idempotency.New(memory.New())
	boom := errors.New("boom")

	_, _, err := reg.Register(context.Background(), "k2", "invoice", "", nil, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected producer error to propagate, got %v", err)
	}

	id, isNew, err := reg.Register(context.Background(), "k2", "invoice", "", nil, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		return "inv_2", nil
	})
	if err != nil {
		t.Fatalf("retry after release: %v", err)
	}
	if !isNew || id != "inv_2" {
		t.Fatalf("retry after release: got (%q, %v), want (inv_2, true)", id, isNew)
	}
}

func TestRegisterRequestHashMismatch(t *testing.T) {
	reg := idempotency.New(memory.New())
	producer := func(ctx context.Context) (string, error) { return "inv_3", nil }

	if _, _, err := reg.Register(context.Background(), "k3", "invoice", "hash-a", nil, idempotency.WaitForWinner, producer); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	_, _, err := reg.Register(context.Background(), "k3", "invoice", "hash-b", nil, idempotency.WaitForWinner, producer)
	if !errors.Is(err, idempotency.ErrRequestHashMismatch) {
		t.Fatalf("got %v, want ErrRequestHashMismatch", err)
	}
}

func TestRegisterExpiry(t *testing.T) {
	store := memory.New()
	reg := idempotency.New(store)
	past := time.Now().Add(-time.Hour)

	id1, _, err := reg.Register(context.Background(), "k4", "invoice", "", &past, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		return "inv_4a", nil
	})
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}

	// The key has already expired, so a fresh Register call should be
	// treated as unseen and invoke the producer again.
	id2, isNew2, err := reg.Register(context.Background(), "k4", "invoice", "", nil, idempotency.WaitForWinner, func(ctx context.Context) (string, error) {
		return "inv_4b", nil
	})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if !isNew2 {
		t.Error("expected expired key to be treated as unseen")
	}
	if id1 == id2 {
		t.Error("expected distinct entity ids across expiry boundary")
	}
}
