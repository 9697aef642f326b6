package cache

import (
	"context"
	"testing"

	"github.com/jonwraymond/nodecache/value"
)

func benchStores(b *testing.B) map[string]Store {
	b.Helper()
	lru, err := NewLRUStore(WithMaxEntries(1 << 16))
	if err != nil {
		b.Fatal(err)
	}
	lfu, err := NewTinyLFUStore(WithMaxBytes(64 << 20))
	if err != nil {
		b.Fatal(err)
	}
	return map[string]Store{
		"memory":  NewMemoryStore(),
		"lru":     lru,
		"tinylfu": lfu,
	}
}

// BenchmarkStore_Get_Hit measures cache hit performance.
func BenchmarkStore_Get_Hit(b *testing.B) {
	for name, s := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			key := NewStageKey("usd", 1, "load", 0)
			_ = s.Insert(ctx, key, value.Stage{Identifier: "scene", Prims: []string{"/World"}})

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = s.Get(ctx, key)
			}
		})
	}
}

// BenchmarkStore_Get_Miss measures cache miss performance.
func BenchmarkStore_Get_Miss(b *testing.B) {
	for name, s := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			key := NewKey("math", 1, 0)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = s.Get(ctx, key)
			}
		})
	}
}

// BenchmarkStore_Insert measures write performance across distinct keys.
func BenchmarkStore_Insert(b *testing.B) {
	for name, s := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = s.Insert(ctx, NewKey("math", uint32(i), 0), value.Float(1))
			}
		})
	}
}

// BenchmarkStore_Concurrent measures mixed parallel access.
func BenchmarkStore_Concurrent(b *testing.B) {
	for name, s := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			for i := range 1024 {
				_ = s.Insert(ctx, NewKey("math", uint32(i), 0), value.Float(1))
			}

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := NewKey("math", uint32(i%1024), 0)
					if i%4 == 0 {
						_ = s.Insert(ctx, key, value.Float(2))
					} else {
						_, _ = s.Get(ctx, key)
					}
					i++
				}
			})
		})
	}
}

// BenchmarkStore_InvalidateNode measures pattern invalidation over a populated store.
func BenchmarkStore_InvalidateNode(b *testing.B) {
	for name, s := range benchStores(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			for i := range 1024 {
				_ = s.Insert(ctx, NewKey("math", uint32(i), 0), value.Float(1))
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				s.Invalidate(ctx, ByNode("math", uint32(i%1024)))
			}
		})
	}
}

// BenchmarkMatches measures pattern evaluation.
func BenchmarkMatches(b *testing.B) {
	p := ByStage("usd", 1, "load")
	k := NewStageKey("usd", 1, "load", 0)
	for i := 0; i < b.N; i++ {
		_ = p.Matches(k)
	}
}
