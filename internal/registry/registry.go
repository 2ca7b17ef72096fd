// Package registry implements the Capability Registries (spec.md §4.3): the
// forward/reverse maps that turn per-server tool/resource/prompt discoveries
// into one namespaced, union catalog, plus the toolset revision/hash and the
// hatago://servers internal resource.
package registry

import "sync"

// Entry wraps one downstream-discovered item with the bookkeeping the
// registry needs to resolve it back to its owner.
type Entry[T any] struct {
	PublicName  string
	ServerID    string
	OriginalKey string
	Item        T
}

// Registry is a generic capability registry: one instance each for tools,
// resources, and prompts. registerServerX(serverId, items) replaces, in one
// locked step, every item previously registered for that server — spec.md
// §4.3 and §9 call this out explicitly so a reader never observes a
// transient empty set for a server that currently has items.
type Registry[T any] struct {
	mu      sync.RWMutex
	namer   *Namer
	keyFunc func(T) string

	// forward: serverID -> originalKey -> Entry
	forward map[string]map[string]*Entry[T]
	// reverse: publicName -> Entry
	reverse map[string]*Entry[T]
}

// New builds a registry. keyFunc extracts the original (per-server) key from
// an item — the tool name, the resource URI, or the prompt name.
func New[T any](namer *Namer, keyFunc func(T) string) *Registry[T] {
	return &Registry[T]{
		namer:   namer,
		keyFunc: keyFunc,
		forward: make(map[string]map[string]*Entry[T]),
		reverse: make(map[string]*Entry[T]),
	}
}

// CollisionError reports a public-name collision during registration. Per
// spec.md §3, only the later (colliding) entry fails; the registry keeps the
// item that already held the name.
type CollisionError struct {
	PublicName    string
	ExistingOwner string
	RejectedOwner string
}

func (e *CollisionError) Error() string {
	return "public name " + e.PublicName + " already owned by server " + e.ExistingOwner + ", rejecting registration from " + e.RejectedOwner
}

// RegisterServer replaces every item previously registered for serverID with
// items, atomically from any reader's point of view. Items whose derived
// public name collides with another server's entry are skipped and reported
// as CollisionErrors; every non-colliding item is still registered.
func (r *Registry[T]) RegisterServer(serverID string, items []T) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearServerLocked(serverID)

	newForward := make(map[string]*Entry[T], len(items))
	var errs []error

	for _, item := range items {
		originalKey := r.keyFunc(item)
		publicName := r.namer.PublicKey(serverID, originalKey)

		if existing, ok := r.reverse[publicName]; ok && existing.ServerID != serverID {
			errs = append(errs, &CollisionError{
				PublicName:    publicName,
				ExistingOwner: existing.ServerID,
				RejectedOwner: serverID,
			})
			continue
		}

		entry := &Entry[T]{PublicName: publicName, ServerID: serverID, OriginalKey: originalKey, Item: item}
		newForward[originalKey] = entry
		r.reverse[publicName] = entry
	}

	r.forward[serverID] = newForward
	return errs
}

// ClearServer removes every item owned by serverID.
func (r *Registry[T]) ClearServer(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearServerLocked(serverID)
}

func (r *Registry[T]) clearServerLocked(serverID string) {
	for _, entry := range r.forward[serverID] {
		if current, ok := r.reverse[entry.PublicName]; ok && current.ServerID == serverID {
			delete(r.reverse, entry.PublicName)
		}
	}
	delete(r.forward, serverID)
}

// Resolve looks up a public name, returning the owning server id and the
// item's original key. The boolean is false if publicName is unknown.
func (r *Registry[T]) Resolve(publicName string) (serverID, originalKey string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, found := r.reverse[publicName]
	if !found {
		return "", "", false
	}
	return entry.ServerID, entry.OriginalKey, true
}

// GetAll returns every currently registered entry, in no particular order.
func (r *Registry[T]) GetAll() []*Entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry[T], 0, len(r.reverse))
	for _, entry := range r.reverse {
		out = append(out, entry)
	}
	return out
}

// ServerItems returns the items currently registered for one server, keyed
// by their original key.
func (r *Registry[T]) ServerItems(serverID string) map[string]*Entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Entry[T], len(r.forward[serverID]))
	for k, v := range r.forward[serverID] {
		out[k] = v
	}
	return out
}

// Len reports the total number of registered entries across all servers.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reverse)
}
