package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/nodecache/value"
)

func TestSingleStage_Roundtrip(t *testing.T) {
	s := NewMemoryStore()
	st := NewSingleStage("math")
	ctx := context.Background()

	if _, ok := st.GetCached(ctx, s, 1, 0); ok {
		t.Error("GetCached on empty store should miss")
	}
	if err := st.StoreResult(ctx, s, 1, 0, value.Float(6)); err != nil {
		t.Fatalf("StoreResult: %v", err)
	}
	_ = st.StoreResult(ctx, s, 1, 1, value.Float(7))
	if v, ok := st.GetCached(ctx, s, 1, 0); !ok || v != value.Float(6) {
		t.Errorf("GetCached = (%v, %v)", v, ok)
	}
	if got := st.Invalidate(ctx, s, 1); got != 2 {
		t.Errorf("Invalidate = %d, want 2", got)
	}
	if st.Manager().ManagedKeyCount() != 0 {
		t.Error("managed set should be empty")
	}
}

func TestMultiStage_NoCascade(t *testing.T) {
	s := NewMemoryStore()
	st := NewMultiStage("usd")
	ctx := context.Background()

	_ = st.StoreStageResult(ctx, s, 1, "load", 0, value.Stage{Identifier: "raw"})
	_ = st.StoreStageResult(ctx, s, 1, "process", 0, value.Stage{Identifier: "processed"})

	if got := st.InvalidateStage(ctx, s, 1, "load"); got != 1 {
		t.Errorf("InvalidateStage(load) = %d, want 1", got)
	}
	if _, ok := st.GetStageCached(ctx, s, 1, "process", 0); !ok {
		t.Error("invalidating load must not touch process")
	}
	if st.Manager().ManagedKeyCount() != 1 {
		t.Errorf("ManagedKeyCount = %d, want 1", st.Manager().ManagedKeyCount())
	}

	_ = st.StoreStageResult(ctx, s, 1, "load", 0, value.Stage{Identifier: "raw"})
	if got := st.InvalidateAllStages(ctx, s, 1); got != 2 {
		t.Errorf("InvalidateAllStages = %d, want 2", got)
	}
	if st.Manager().ManagedKeyCount() != 0 {
		t.Error("managed set should be empty")
	}
}

func TestSingleStage_GetOrCompute(t *testing.T) {
	s := NewMemoryStore()
	st := NewSingleStage("math")
	ctx := context.Background()
	var calls atomic.Int32

	compute := func(context.Context) (value.Value, error) {
		calls.Add(1)
		return value.Float(3), nil
	}
	for range 3 {
		v, err := st.GetOrCompute(ctx, s, 1, 0, compute)
		if err != nil || v != value.Float(3) {
			t.Fatalf("GetOrCompute = (%v, %v)", v, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("compute called %d times, want 1", calls.Load())
	}
}

func TestSingleStage_GetOrComputeSharesInflight(t *testing.T) {
	s := NewMemoryStore()
	st := NewSingleStage("math")
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})

	compute := func(context.Context) (value.Value, error) {
		calls.Add(1)
		<-release
		return value.Float(3), nil
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := st.GetOrCompute(ctx, s, 1, 0, compute); err != nil || v != value.Float(3) {
				t.Errorf("GetOrCompute = (%v, %v)", v, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 4 {
		t.Errorf("compute called %d times", n)
	}
}

func TestGetOrCompute_Errors(t *testing.T) {
	s := NewMemoryStore()
	st := NewMultiStage("usd")
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := st.GetOrComputeStage(ctx, s, 1, "load", 0, func(context.Context) (value.Value, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}

	if _, err := st.GetOrComputeStage(ctx, s, 1, "load", 1, func(context.Context) (value.Value, error) {
		return nil, nil
	}); !errors.Is(err, ErrNilValue) {
		t.Errorf("nil result error = %v, want ErrNilValue", err)
	}

	// A value the store rejects is still delivered, just uncached.
	failing := &failingStore{Store: s, err: ErrSerialization}
	v, err := st.GetOrComputeStage(ctx, failing, 1, "process", 0, func(context.Context) (value.Value, error) {
		return value.Float(2), nil
	})
	if err != nil {
		t.Fatalf("storage failure should not surface: %v", err)
	}
	if v != value.Float(2) {
		t.Errorf("value = %v, want 2", v)
	}
	if st.Manager().ManagedKeyCount() != 0 {
		t.Error("uncached value must not be tracked")
	}
}
