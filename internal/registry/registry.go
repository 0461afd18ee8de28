package registry

import (
	"sync"

	"messaging-service/internal/models"
)

// Channel is one live transport connection registered under an identity.
// TrySend must never block: it reports false when the event could not be
// queued (full buffer, closed connection).
type Channel interface {
	ID() string
	TrySend(event models.DeliveryEvent) bool
	Close()
}

type registration struct {
	identity string
	role     string
}

// Registry maps identities to their live channels. Pure in-memory
// structure; no operation here may block on I/O.
type Registry struct {
	mu         sync.RWMutex
	byIdentity map[string]map[Channel]struct{}
	byChannel  map[Channel]registration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byIdentity: make(map[string]map[Channel]struct{}),
		byChannel:  make(map[Channel]registration),
	}
}

// Register files the channel under identity. Multiple simultaneous
// channels per identity are allowed; all of them receive pushes.
func (r *Registry) Register(identity, role string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byIdentity[identity]; !ok {
		r.byIdentity[identity] = make(map[Channel]struct{})
	}
	r.byIdentity[identity][ch] = struct{}{}
	r.byChannel[ch] = registration{identity: identity, role: role}
}

// Unregister removes the channel from whatever identity it was filed
// under. Idempotent: unknown channels are a no-op.
func (r *Registry) Unregister(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byChannel[ch]
	if !ok {
		return
	}
	delete(r.byChannel, ch)
	if chans, ok := r.byIdentity[reg.identity]; ok {
		delete(chans, ch)
		if len(chans) == 0 {
			delete(r.byIdentity, reg.identity)
		}
	}
}

// ChannelsFor returns a snapshot of the identity's live channels.
func (r *Registry) ChannelsFor(identity string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chans := make([]Channel, 0, len(r.byIdentity[identity]))
	for ch := range r.byIdentity[identity] {
		chans = append(chans, ch)
	}
	return chans
}

// ChannelsForRole returns a snapshot of every channel registered under an
// identity acting in the given role.
func (r *Registry) ChannelsForRole(role string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var chans []Channel
	for ch, reg := range r.byChannel {
		if reg.role == role {
			chans = append(chans, ch)
		}
	}
	return chans
}
