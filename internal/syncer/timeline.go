package syncer

import (
	"sort"
	"sync"
	"time"

	"supportchat/internal/domain"
	"supportchat/internal/service"
)

// EntryKind tags a timeline entry as either a locally-created optimistic
// message awaiting confirmation or a server-confirmed message.
type EntryKind int

const (
	EntryPending EntryKind = iota
	EntryConfirmed
)

// Entry is one row of the local conversation view. Reconciliation swaps the
// whole variant: a Pending entry is replaced by a Confirmed one, never
// mutated field by field.
type Entry struct {
	Kind EntryKind

	// Pending fields.
	Token       string
	Content     string
	IsUploading bool
	QueuedAt    time.Time

	// Confirmed field.
	Message *service.MessageView
}

// Timeline is the client-local ordered message list. All methods are safe
// for concurrent use; the poller ticks and the send path share it.
type Timeline struct {
	mu        sync.Mutex
	confirmed []*service.MessageView
	byID      map[int64]*service.MessageView
	pending   []Entry
	lastID    int64
}

func NewTimeline() *Timeline {
	return &Timeline{byID: make(map[int64]*service.MessageView)}
}

// LastID returns the highest confirmed message id, the cursor for
// incremental fetches. Tracked directly: creation order and id order can
// disagree, and the cursor must never move backwards.
func (t *Timeline) LastID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastID
}

// Merge folds a server fetch result into the timeline, deduplicating by id
// and keeping creation order. A confirmed message whose client token
// matches a pending entry retires that entry: the server copy is canonical.
// Returns the messages that were actually new.
func (t *Timeline) Merge(msgs []*service.MessageView) []*service.MessageView {
	t.mu.Lock()
	defer t.mu.Unlock()

	var added []*service.MessageView
	for _, m := range msgs {
		if _, ok := t.byID[m.ID]; ok {
			continue
		}
		t.byID[m.ID] = m
		t.confirmed = append(t.confirmed, m)
		added = append(added, m)
		if m.ID > t.lastID {
			t.lastID = m.ID
		}
		if m.ClientToken != "" {
			t.dropPendingLocked(m.ClientToken)
		}
	}
	if len(added) > 0 {
		sort.SliceStable(t.confirmed, func(i, j int) bool {
			a, b := t.confirmed[i], t.confirmed[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
	}
	return added
}

// ApplyStatuses patches local statuses from a server snapshot. A status is
// only ever raised, never lowered, so interleaved status and message ticks
// cannot regress what the user already saw.
func (t *Timeline) ApplyStatuses(msgs []*service.MessageView) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := 0
	for _, m := range msgs {
		local, ok := t.byID[m.ID]
		if !ok {
			continue
		}
		if m.Status != local.Status && m.Status.AtLeast(local.Status) {
			local.Status = m.Status
			changed++
		}
	}
	return changed
}

// AppendPending adds an optimistic local entry keyed by its client token.
func (t *Timeline) AppendPending(token, content string, uploading bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, Entry{
		Kind:        EntryPending,
		Token:       token,
		Content:     content,
		IsUploading: uploading,
		QueuedAt:    time.Now(),
	})
}

// Confirm replaces the pending entry for token with the server-confirmed
// message.
func (t *Timeline) Confirm(token string, msg *service.MessageView) {
	t.mu.Lock()
	t.dropPendingLocked(token)
	t.mu.Unlock()
	t.Merge([]*service.MessageView{msg})
}

// Drop removes the pending entry for token after a failed submission.
func (t *Timeline) Drop(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropPendingLocked(token)
}

func (t *Timeline) dropPendingLocked(token string) {
	for i, e := range t.pending {
		if e.Token == token {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}

// Snapshot returns the current view: confirmed messages in creation order
// followed by pending entries in submission order.
func (t *Timeline) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := make([]Entry, 0, len(t.confirmed)+len(t.pending))
	for _, m := range t.confirmed {
		res = append(res, Entry{Kind: EntryConfirmed, Message: m})
	}
	res = append(res, t.pending...)
	return res
}

// Status returns the current status of a confirmed message, or false when
// the id is unknown.
func (t *Timeline) Status(id int64) (domain.MessageStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byID[id]
	if !ok {
		return "", false
	}
	return m.Status, true
}
