// Package repository holds the in-memory score index and its errors.
package repository

import "context"

// Entry is one ranked player in the score index.
// Rank is 1-based and only set on entries returned by Top.
type Entry struct {
	Rank     int
	PlayerID string
	BestMs   int64
}

// Store provides read/write access to the score index.
// Order is BestMs ascending, then PlayerID ascending; ranks are strict positions.
type Store interface {
	// UpsertIfBetter records ms for playerID if the player is absent or ms is
	// strictly lower than the stored best. It reports whether the index changed.
	UpsertIfBetter(ctx context.Context, playerID string, ms int64) (bool, error)

	// RankOf returns the 1-based position of playerID.
	// Returns ErrNotFound if the player has no entry.
	RankOf(ctx context.Context, playerID string) (int, error)

	// ScoreOf returns the best time in milliseconds for playerID.
	// Returns ErrNotFound if the player has no entry.
	ScoreOf(ctx context.Context, playerID string) (int64, error)

	// Top returns up to count entries starting at the 0-based offset.
	Top(ctx context.Context, offset, count int) ([]Entry, error)

	// Size returns the number of players in the index.
	Size(ctx context.Context) int

	// Load atomically replaces the whole index with entries and returns the
	// number of players loaded.
	Load(ctx context.Context, entries []Entry) int

	// Version returns a marker for the index's current write position.
	Version(ctx context.Context) uint64

	// LoadSince is Load for entries read after Version returned version:
	// players changed since then keep the faster of both times.
	LoadSince(ctx context.Context, entries []Entry, version uint64) int
}
