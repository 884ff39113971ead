package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/okian/besttime/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: BestMs ASC, then PlayerID ASC (deterministic).
// "less" means ranks earlier, so an in-order traversal yields the
// leaderboard from best to worst. Every node carries its subtree size,
// which turns rank and offset lookups into O(log n) walks.

type node struct {
	id    string
	ms    int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aMs, aID) should appear before (bMs, bID).
func less(aMs int64, aID string, bMs int64, bID string) bool {
	if aMs != bMs {
		return aMs < bMs // faster time ranks earlier
	}
	return aID < bID // tie-breaker by id asc
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, ms int64, prio uint64) *node {
	if n == nil {
		return &node{id: id, ms: ms, prio: prio, size: 1}
	}
	if less(ms, id, n.ms, n.id) {
		n.left = insert(n.left, id, ms, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, ms, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, ms int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case ms == n.ms && id == n.id:
		// Rotate the higher-priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, ms)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, ms)
		}
	case less(ms, id, n.ms, n.id):
		n.left = deleteNode(n.left, id, ms)
	default:
		n.right = deleteNode(n.right, id, ms)
	}
	fix(n)
	return n
}

// position counts the nodes ordered before (ms, id) and adds one.
// The key must be present in the tree.
func position(n *node, id string, ms int64) int {
	before := 0
	for n != nil {
		switch {
		case ms == n.ms && id == n.id:
			return before + nsize(n.left) + 1
		case less(ms, id, n.ms, n.id):
			n = n.left
		default:
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// collectRange appends nodes in order, skipping the first skip of them,
// until out holds limit entries. Subtrees entirely before the offset are
// skipped by size, so the cost is O(log n + limit).
func collectRange(n *node, skip, limit int, out *[]Entry) int {
	if n == nil || len(*out) >= limit {
		return skip
	}
	if ls := nsize(n.left); skip >= ls {
		skip -= ls
	} else {
		skip = collectRange(n.left, skip, limit, out)
	}
	if len(*out) >= limit {
		return skip
	}
	if skip > 0 {
		skip--
	} else {
		*out = append(*out, Entry{PlayerID: n.id, BestMs: n.ms})
	}
	return collectRange(n.right, skip, limit, out)
}

// TreapStore is the default Store: a treap with random priorities plus a
// map for O(1) improvement checks, guarded by one RWMutex.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	best map[string]int64
	rng  *rand.Rand

	// seq counts index changes; written maps each player to the seq of
	// its last change so a rebuild can keep writes that raced its scan.
	seq     uint64
	written map[string]uint64

	seed                  uint64
	seeded                bool
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

var _ Store = (*TreapStore)(nil)

// NewTreapStore constructs a treap store and starts its metrics updater.
// The updater stops on Close or when ctx is cancelled.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		best:                  make(map[string]int64),
		written:               make(map[string]uint64),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.seeded {
		s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15)) //nolint:gosec // tree balance, not security
	} else {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // tree balance, not security
	}

	metrics.UpdateIndexSize(0)
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// UpsertIfBetter implements Store.UpsertIfBetter in O(log n) expected time.
// The comparison and the write happen under one write lock.
func (s *TreapStore) UpsertIfBetter(_ context.Context, playerID string, ms int64) (bool, error) {
	if playerID == "" {
		return false, ErrInvalidPlayerID
	}
	if ms < 0 {
		metrics.RecordErrorByComponent("repository", "invalid_score")
		return false, ErrInvalidScore
	}

	start := time.Now()
	defer func() {
		metrics.RecordIndexUpdateLatency(sinceMillis(start))
	}()

	s.mu.Lock()
	old, exists := s.best[playerID]
	if exists && ms >= old {
		s.mu.Unlock()
		return false, nil
	}
	if exists {
		s.root = deleteNode(s.root, playerID, old)
	}
	s.best[playerID] = ms
	s.root = insert(s.root, playerID, ms, s.rng.Uint64())
	s.seq++
	s.written[playerID] = s.seq
	size := len(s.best)
	s.mu.Unlock()

	metrics.RecordIndexUpdate()
	if !exists {
		metrics.UpdateIndexSize(size)
	}
	return true, nil
}

// RankOf returns the 1-based rank of playerID in O(log n).
func (s *TreapStore) RankOf(_ context.Context, playerID string) (int, error) {
	start := time.Now()
	defer func() {
		metrics.RecordIndexQueryLatency(sinceMillis(start))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.best[playerID]
	if !ok {
		return 0, ErrNotFound
	}
	return position(s.root, playerID, ms), nil
}

// ScoreOf returns the best time for playerID in O(1).
func (s *TreapStore) ScoreOf(_ context.Context, playerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.best[playerID]
	if !ok {
		return 0, ErrNotFound
	}
	return ms, nil
}

// Top returns up to count entries starting at offset, with ranks filled in.
// A negative offset is treated as zero; out-of-range windows yield an empty slice.
func (s *TreapStore) Top(_ context.Context, offset, count int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordIndexQueryLatency(sinceMillis(start))
	}()

	offset = max(offset, 0)

	s.mu.RLock()
	defer s.mu.RUnlock()

	size := nsize(s.root)
	if count <= 0 || offset >= size {
		return []Entry{}, nil
	}

	out := make([]Entry, 0, min(count, size-offset))
	collectRange(s.root, offset, count, &out)
	for i := range out {
		out[i].Rank = offset + i + 1
	}
	return out, nil
}

// Size returns the number of ranked players.
func (s *TreapStore) Size(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.best)
}

// Version returns the current write sequence. Pass it to LoadSince to keep
// changes made after this point.
func (s *TreapStore) Version(_ context.Context) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Load replaces the index with entries. The new tree is built without
// holding the lock and swapped in at once, so readers see either the old
// or the new index. Duplicate player IDs keep their minimum; entries with
// an empty ID or a negative time are ignored.
func (s *TreapStore) Load(ctx context.Context, entries []Entry) int {
	return s.LoadSince(ctx, entries, math.MaxUint64)
}

// LoadSince is Load for a snapshot read after Version returned version.
// Players changed in the index after that point keep the faster of their
// live and loaded times, so submissions racing the rebuild are not lost.
func (s *TreapStore) LoadSince(_ context.Context, entries []Entry, version uint64) int {
	best := make(map[string]int64, len(entries))
	for _, e := range entries {
		if e.PlayerID == "" || e.BestMs < 0 {
			continue
		}
		if cur, ok := best[e.PlayerID]; !ok || e.BestMs < cur {
			best[e.PlayerID] = e.BestMs
		}
	}

	ids := make([]string, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	// Priorities come from a private generator so the build needs no lock.
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // tree balance, not security
	var root *node
	for _, id := range ids {
		root = insert(root, id, best[id], rng.Uint64())
	}

	s.mu.Lock()
	for id, at := range s.written {
		if at <= version {
			continue
		}
		live := s.best[id]
		loaded, ok := best[id]
		if ok && loaded <= live {
			continue
		}
		if ok {
			root = deleteNode(root, id, loaded)
		}
		best[id] = live
		root = insert(root, id, live, s.rng.Uint64())
	}
	for id := range s.written {
		if _, ok := best[id]; !ok {
			delete(s.written, id)
		}
	}
	s.root = root
	s.best = best
	n := len(best)
	s.mu.Unlock()

	metrics.UpdateIndexSize(n)
	return n
}

// startMetricsUpdater periodically publishes the index size.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateIndexSize(s.Size(ctx))
			}
		}
	}()
}

func sinceMillis(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
