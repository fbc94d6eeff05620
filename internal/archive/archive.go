// Package archive keeps a bounded, in-memory record of recent
// conversation activity. It is best-effort history: nothing here is
// persisted, and a restart starts empty.
package archive

import (
	"strings"
	"sync"
)

// Capacity is the per-chat ring buffer size. Once a chat holds this
// many messages, each append evicts the oldest.
const Capacity = 50

// groupSuffix marks group chat JIDs; group chats are archived but
// excluded from the conversation listing.
const groupSuffix = "@g.us"

// Message is one archived message. Records are immutable once
// appended; delivery status changes are separate events, not updates
// to archived records.
type Message struct {
	ID        string `json:"id"`
	ChatJID   string `json:"chatId"`
	Body      string `json:"text"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`
}

// Conversation is a derived summary of one chat, recomputed on read.
type Conversation struct {
	ChatJID       string `json:"id"`
	Name          string `json:"name"`
	LastMessage   string `json:"lastMessage"`
	LastTimestamp int64  `json:"lastMessageTimestamp"`
	LastFromMe    bool   `json:"lastMessageFromMe"`
}

// ring is a fixed-capacity FIFO buffer. Eviction is structural: a full
// ring overwrites its oldest slot, so the bound cannot drift.
type ring struct {
	buf   [Capacity]Message
	start int
	n     int
}

func (r *ring) push(m Message) {
	if r.n < Capacity {
		r.buf[(r.start+r.n)%Capacity] = m
		r.n++
		return
	}
	r.buf[r.start] = m
	r.start = (r.start + 1) % Capacity
}

// last returns up to limit most recent messages, oldest first.
func (r *ring) last(limit int) []Message {
	if limit <= 0 || limit > r.n {
		limit = r.n
	}
	out := make([]Message, 0, limit)
	for i := r.n - limit; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%Capacity])
	}
	return out
}

// Archive holds one ring per chat, keyed by the full chat JID, in the
// order chats were first seen.
type Archive struct {
	mu    sync.RWMutex
	rings map[string]*ring
	order []string
}

// New creates an empty archive.
func New() *Archive {
	return &Archive{
		rings: make(map[string]*ring),
	}
}

// Append records a message under its chat JID, creating the chat's
// buffer on first sight. Duplicate message IDs from the underlying
// stream are stored as-is; the archive does not deduplicate.
func (a *Archive) Append(m Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.rings[m.ChatJID]
	if !ok {
		r = &ring{}
		a.rings[m.ChatJID] = r
		a.order = append(a.order, m.ChatJID)
	}
	r.push(m)
}

// Known reports whether any message has been archived for the chat.
func (a *Archive) Known(chatJID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.rings[chatJID]
	return ok
}

// Recent returns up to limit most recent messages for a chat, oldest
// first. An unknown chat yields an empty slice.
func (a *Archive) Recent(chatJID string, limit int) []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()

	r, ok := a.rings[chatJID]
	if !ok {
		return []Message{}
	}
	return r.last(limit)
}

// Conversations returns at most limit conversation summaries in
// first-seen order. Group chats are excluded: only individual
// conversations are surfaced.
func (a *Archive) Conversations(limit int) []Conversation {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Conversation, 0, len(a.order))
	for _, jid := range a.order {
		if strings.HasSuffix(jid, groupSuffix) {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		r := a.rings[jid]
		last := r.buf[(r.start+r.n-1)%Capacity]
		out = append(out, Conversation{
			ChatJID:       jid,
			Name:          jid,
			LastMessage:   last.Body,
			LastTimestamp: last.Timestamp,
			LastFromMe:    last.FromMe,
		})
	}
	return out
}
