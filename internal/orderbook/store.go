package orderbook

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"bookflow/models"
)

// ErrUnknownInstrument is returned when a delta arrives for an instrument that
// has no snapshot in the store.
var ErrUnknownInstrument = errors.New("unknown instrument")

// DefaultMaxDepth is the number of levels kept per side.
const DefaultMaxDepth = 10

const storeShards = 16

// State is the reconstructed book of one instrument. Values handed out by the
// Store are copies; mutating them does not affect stored state.
type State struct {
	Instrument models.Instrument
	// Bids are sorted by descending price, Asks by ascending price.
	Bids []models.PriceLevel
	Asks []models.PriceLevel
	// Checksum is the value carried by the message that produced this
	// state, empty when the message carried none.
	Checksum string
	// UpdatedAt is the local time the state was stored.
	UpdatedAt time.Time
	// ExchangeTime is the newest level timestamp applied so far.
	ExchangeTime time.Time
	// TimestampRegressed is set when the newest level of the last delta was
	// older than ExchangeTime before it was applied.
	TimestampRegressed bool
}

func (s State) clone() State {
	s.Bids = append([]models.PriceLevel(nil), s.Bids...)
	s.Asks = append([]models.PriceLevel(nil), s.Asks...)
	return s
}

type storeShard struct {
	mu    sync.RWMutex
	books map[models.Instrument]State
}

// Store owns the bounded-depth book of every instrument in one session.
// Instruments are spread over shards so updates to one instrument do not
// block readers of another.
type Store struct {
	maxDepth int
	now      func() time.Time
	shards   [storeShards]storeShard
}

func NewStore(maxDepth int) *Store {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	s := &Store{maxDepth: maxDepth, now: time.Now}
	for i := range s.shards {
		s.shards[i].books = make(map[models.Instrument]State)
	}
	return s
}

func (s *Store) MaxDepth() int { return s.maxDepth }

func (s *Store) shard(inst models.Instrument) *storeShard {
	h := fnv.New32a()
	h.Write([]byte(inst.Base))
	h.Write([]byte{'/'})
	h.Write([]byte(inst.Quote))
	return &s.shards[h.Sum32()%storeShards]
}

// ApplySnapshot replaces the whole state of inst. Levels are deduplicated,
// sorted and truncated to the store depth, so callers passing an already
// normalized snapshot get it back unchanged.
func (s *Store) ApplySnapshot(inst models.Instrument, bids, asks []models.PriceLevel, checksum string) State {
	state := State{
		Instrument:   inst,
		Bids:         s.normalize(Merge(nil, bids), models.SideBid),
		Asks:         s.normalize(Merge(nil, asks), models.SideAsk),
		Checksum:     checksum,
		UpdatedAt:    s.now(),
		ExchangeTime: newestTimestamp(time.Time{}, bids, asks),
	}

	sh := s.shard(inst)
	sh.mu.Lock()
	sh.books[inst] = state
	sh.mu.Unlock()
	return state.clone()
}

// ApplyDelta merges bid and ask updates into the stored state of inst.
func (s *Store) ApplyDelta(inst models.Instrument, bidDeltas, askDeltas []models.PriceLevel, checksum string) (State, error) {
	sh := s.shard(inst)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev, ok := sh.books[inst]
	if !ok {
		return State{}, fmt.Errorf("%s: %w", inst, ErrUnknownInstrument)
	}

	newest := newestTimestamp(time.Time{}, bidDeltas, askDeltas)
	state := State{
		Instrument:   inst,
		Bids:         s.normalize(Merge(prev.Bids, bidDeltas), models.SideBid),
		Asks:         s.normalize(Merge(prev.Asks, askDeltas), models.SideAsk),
		Checksum:     checksum,
		UpdatedAt:    s.now(),
		ExchangeTime: prev.ExchangeTime,
	}
	if !newest.IsZero() {
		if newest.Before(prev.ExchangeTime) {
			state.TimestampRegressed = true
		} else {
			state.ExchangeTime = newest
		}
	}

	sh.books[inst] = state
	return state.clone(), nil
}

// Get returns a copy of the current state of inst.
func (s *Store) Get(inst models.Instrument) (State, bool) {
	sh := s.shard(inst)
	sh.mu.RLock()
	state, ok := sh.books[inst]
	sh.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return state.clone(), true
}

// Depth reports the stored level count per side.
func (s *Store) Depth(inst models.Instrument) (bids, asks int, ok bool) {
	sh := s.shard(inst)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	state, ok := sh.books[inst]
	return len(state.Bids), len(state.Asks), ok
}

// Instruments lists every instrument with a stored snapshot.
func (s *Store) Instruments() []models.Instrument {
	var out []models.Instrument
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for inst := range sh.books {
			out = append(out, inst)
		}
		sh.mu.RUnlock()
	}
	return out
}

func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.books)
		sh.mu.RUnlock()
	}
	return n
}

// Clear drops all per-instrument state.
func (s *Store) Clear() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.books = make(map[models.Instrument]State)
		sh.mu.Unlock()
	}
}

func (s *Store) normalize(levels []models.PriceLevel, side models.Side) []models.PriceLevel {
	SortLevels(levels, side)
	if len(levels) > s.maxDepth {
		levels = levels[:s.maxDepth]
	}
	for i := range levels {
		levels[i].Side = side
	}
	return levels
}

// SortLevels orders bids by descending and asks by ascending price.
func SortLevels(levels []models.PriceLevel, side models.Side) {
	if side == models.SideBid {
		sort.Slice(levels, func(i, j int) bool {
			return levels[i].Price.GreaterThan(levels[j].Price)
		})
		return
	}
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price.LessThan(levels[j].Price)
	})
}

func newestTimestamp(newest time.Time, sides ...[]models.PriceLevel) time.Time {
	for _, levels := range sides {
		for _, l := range levels {
			if l.Timestamp.After(newest) {
				newest = l.Timestamp
			}
		}
	}
	return newest
}
