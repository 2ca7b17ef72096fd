package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"sync/atomic"
)

// ToolDescriptor is the (publicName, description) pair the toolset hash is
// computed over (spec.md §3 ToolsetRevision).
type ToolDescriptor struct {
	PublicName  string
	Description string
}

// Toolset tracks the monotonic revision counter and content hash of the
// union tool catalog. It is updated whenever the tool registry changes.
type Toolset struct {
	revision int64

	mu   sync.Mutex
	hash string
}

// NewToolset builds a Toolset starting at revision 0 with the hash of an
// empty tool set.
func NewToolset() *Toolset {
	t := &Toolset{}
	t.mu.Lock()
	t.hash = computeHash(nil)
	t.mu.Unlock()
	return t
}

// Bump recomputes the hash from the current tool set and advances the
// revision counter. Call this after every RegisterServer/ClearServer call on
// the tool registry.
func (t *Toolset) Bump(descriptors []ToolDescriptor) {
	t.mu.Lock()
	t.hash = computeHash(descriptors)
	t.mu.Unlock()

	atomic.AddInt64(&t.revision, 1)
}

// Revision returns the current monotonic revision.
func (t *Toolset) Revision() int64 {
	return atomic.LoadInt64(&t.revision)
}

// Hash returns the current 16-hex-char truncated SHA-256 digest.
func (t *Toolset) Hash() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hash
}

// computeHash is stable under reordering: it sorts the descriptors before
// hashing (spec.md §8: "stable under re-ordering of registration events that
// produce the same final multiset").
func computeHash(descriptors []ToolDescriptor) string {
	sorted := make([]ToolDescriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PublicName != sorted[j].PublicName {
			return sorted[i].PublicName < sorted[j].PublicName
		}
		return sorted[i].Description < sorted[j].Description
	})

	h := sha256.New()
	for _, d := range sorted {
		h.Write([]byte(d.PublicName))
		h.Write([]byte{0})
		h.Write([]byte(d.Description))
		h.Write([]byte{0})
	}
	full := hex.EncodeToString(h.Sum(nil))
	return full[:16]
}
