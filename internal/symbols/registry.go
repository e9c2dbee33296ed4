package symbols

import (
	"errors"
	"fmt"
	"sync"

	"bookflow/models"
)

// ErrUnknownChannel is returned when a data message references a channel id
// for which no subscription acknowledgement has been recorded.
var ErrUnknownChannel = errors.New("unknown channel")

const registryShards = 16

type binding struct {
	kind       models.ChannelKind
	instrument models.Instrument
}

type registryShard struct {
	mu       sync.RWMutex
	channels map[int64]binding
}

// Registry maps session-scoped channel ids to the instrument they were
// subscribed for. Lookups lock only the shard owning the channel id, so
// readers on other goroutines do not serialize unrelated channels.
type Registry struct {
	shards [registryShards]registryShard

	// active enforces one channel per (kind, instrument).
	mu     sync.Mutex
	active map[binding]int64
}

func NewRegistry() *Registry {
	r := &Registry{active: make(map[binding]int64)}
	for i := range r.shards {
		r.shards[i].channels = make(map[int64]binding)
	}
	return r
}

func (r *Registry) shard(channelID int64) *registryShard {
	return &r.shards[uint64(channelID)%registryShards]
}

// Record associates the acknowledged channel with its instrument. Recording
// the same id again overwrites the previous association, and a newer channel
// for the same kind and instrument retires the older one.
func (r *Registry) Record(ack models.SubscriptionAck) {
	b := binding{kind: ack.Kind, instrument: ack.Instrument}

	r.mu.Lock()
	prev, hadPrev := r.active[b]
	r.active[b] = ack.ChannelID
	r.mu.Unlock()

	if hadPrev && prev != ack.ChannelID {
		s := r.shard(prev)
		s.mu.Lock()
		if cur, ok := s.channels[prev]; ok && cur == b {
			delete(s.channels, prev)
		}
		s.mu.Unlock()
	}

	s := r.shard(ack.ChannelID)
	s.mu.Lock()
	old, overwritten := s.channels[ack.ChannelID]
	s.channels[ack.ChannelID] = b
	s.mu.Unlock()

	if overwritten && old != b {
		r.mu.Lock()
		if r.active[old] == ack.ChannelID {
			delete(r.active, old)
		}
		r.mu.Unlock()
	}
}

// Resolve returns the instrument recorded for channelID.
func (r *Registry) Resolve(channelID int64) (models.Instrument, error) {
	s := r.shard(channelID)
	s.mu.RLock()
	b, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return models.Instrument{}, fmt.Errorf("channel %d: %w", channelID, ErrUnknownChannel)
	}
	return b.instrument, nil
}

// Len reports the number of recorded channels.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.channels)
		s.mu.RUnlock()
	}
	return n
}

// Clear drops every association. Channel ids have no meaning after the
// owning connection ends.
func (r *Registry) Clear() {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		s.channels = make(map[int64]binding)
		s.mu.Unlock()
	}
	r.mu.Lock()
	r.active = make(map[binding]int64)
	r.mu.Unlock()
}
