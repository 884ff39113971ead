package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
)

func populate(b *testing.B, store *TreapStore, n int) {
	b.Helper()
	ctx := context.Background()
	entries := make([]Entry, n)
	r := rand.New(rand.NewPCG(1, 2))
	for i := range entries {
		entries[i] = Entry{PlayerID: fmt.Sprintf("player_%d", i), BestMs: int64(2000 + r.IntN(600000))}
	}
	store.Load(ctx, entries)
}

func BenchmarkTreapStore_UpsertIfBetter(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	populate(b, store, 100_000)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		for pb.Next() {
			_, _ = store.UpsertIfBetter(ctx, fmt.Sprintf("player_%d", r.IntN(100_000)), int64(2000+r.IntN(600000)))
		}
	})
}

func BenchmarkTreapStore_RankOf(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	populate(b, store, 1_000_000)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		for pb.Next() {
			_, _ = store.RankOf(ctx, fmt.Sprintf("player_%d", r.IntN(1_000_000)))
		}
	})
}

func BenchmarkTreapStore_TopPage(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	populate(b, store, 1_000_000)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		_, _ = store.Top(ctx, (i*10)%900_000, 10)
	}
}

// Mixed load: 40% writes, 35% rank lookups, 20% top-10 reads, 5% size.
func BenchmarkTreapStore_MixedLoad(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(ctx)
	defer func() { _ = store.Close() }()
	populate(b, store, 200_000)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		i := 0
		for pb.Next() {
			id := fmt.Sprintf("player_%d", r.IntN(200_000))
			switch op := i % 20; {
			case op < 8:
				_, _ = store.UpsertIfBetter(ctx, id, int64(2000+r.IntN(600000)))
			case op < 15:
				_, _ = store.RankOf(ctx, id)
			case op < 19:
				_, _ = store.Top(ctx, 0, 10)
			default:
				store.Size(ctx)
			}
			i++
		}
	})
}
