package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog/log"

	"support-chat/internal/models"
	"support-chat/internal/observability"
)

// BufferEntry is a frame plus the store keys it was built from, so the frame
// can be dropped once those records are deleted.
type BufferEntry struct {
	MessageID      string
	ConversationID string
	// Owners are the identities whose purge must remove the frame: the
	// conversation's user and the message sender.
	Owners []models.Identity
	Data   []byte
}

type bufferedEvent struct {
	BufferEntry
	seq uint64
	at  time.Time
}

// Buffer holds recent message:received frames per room so a connection
// that joins late can catch up. It is memory only and bounded per room.
// It also remembers which message ids were fanned out recently, so each
// stored message is published once.
type Buffer struct {
	rooms      map[Room][]bufferedEvent
	published  map[string]time.Time
	maxPerRoom int
	retention  time.Duration
	seq        uint64
	now        func() time.Time
	mu         sync.Mutex
}

func NewBuffer(maxPerRoom int, retention time.Duration) *Buffer {
	return &Buffer{
		rooms:      make(map[Room][]bufferedEvent),
		published:  make(map[string]time.Time),
		maxPerRoom: maxPerRoom,
		retention:  retention,
		now:        time.Now,
	}
}

// Claim marks messageID as published. It returns false when the id was
// already claimed inside the retention window. A nil buffer claims
// everything.
func (b *Buffer) Claim(messageID string) bool {
	if b == nil || messageID == "" {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if at, ok := b.published[messageID]; ok && !at.Before(now.Add(-b.retention)) {
		return false
	}
	b.published[messageID] = now
	return true
}

// Append records entry in each room, dropping the oldest entries once a
// room is full.
func (b *Buffer) Append(rooms []Room, entry BufferEntry) {
	if b == nil || b.maxPerRoom <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	ev := bufferedEvent{BufferEntry: entry, seq: b.seq, at: b.now()}
	for _, room := range rooms {
		events := append(b.rooms[room], ev)
		if over := len(events) - b.maxPerRoom; over > 0 {
			events = append([]bufferedEvent(nil), events[over:]...)
		}
		b.rooms[room] = events
	}
}

// Replay returns the buffered frames of rooms that are still inside the
// retention window, oldest first, without duplicates.
func (b *Buffer) Replay(rooms []Room) [][]byte {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	cutoff := b.now().Add(-b.retention)
	seen := make(map[uint64]bool)
	var events []bufferedEvent
	for _, room := range rooms {
		for _, ev := range b.rooms[room] {
			if seen[ev.seq] || ev.at.Before(cutoff) {
				continue
			}
			seen[ev.seq] = true
			events = append(events, ev)
		}
	}
	b.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].seq < events[j].seq })
	out := make([][]byte, len(events))
	for i, ev := range events {
		out[i] = ev.Data
	}
	return out
}

// ForgetMessages drops every buffered frame of the given message ids and
// returns how many room entries were removed.
func (b *Buffer) ForgetMessages(ids ...string) int {
	set := toSet(ids)
	return b.forget(func(ev bufferedEvent) bool { return set[ev.MessageID] })
}

// ForgetConversations drops every buffered frame that belongs to one of the
// given conversations.
func (b *Buffer) ForgetConversations(ids ...string) int {
	set := toSet(ids)
	return b.forget(func(ev bufferedEvent) bool { return set[ev.ConversationID] })
}

// ForgetIdentity drops every frame owned by identity, matched on user id or
// email.
func (b *Buffer) ForgetIdentity(identity models.Identity) int {
	identity = identity.Normalize()
	if identity.IsZero() {
		return 0
	}
	return b.forget(func(ev bufferedEvent) bool {
		for _, owner := range ev.Owners {
			owner = owner.Normalize()
			if (identity.UserID != "" && owner.UserID == identity.UserID) ||
				(identity.Email != "" && owner.Email == identity.Email) {
				return true
			}
		}
		return false
	})
}

func (b *Buffer) forget(match func(bufferedEvent) bool) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for room, events := range b.rooms {
		var kept []bufferedEvent
		for _, ev := range events {
			if match(ev) {
				removed++
				continue
			}
			kept = append(kept, ev)
		}
		if len(kept) == 0 {
			delete(b.rooms, room)
			continue
		}
		b.rooms[room] = kept
	}
	return removed
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}

// Prune drops entries older than the retention window and returns how many
// room entries were removed.
func (b *Buffer) Prune() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.now().Add(-b.retention)
	for id, at := range b.published {
		if at.Before(cutoff) {
			delete(b.published, id)
		}
	}
	removed := 0
	for room, events := range b.rooms {
		keep := 0
		for keep < len(events) && events[keep].at.Before(cutoff) {
			keep++
		}
		removed += keep
		if keep == len(events) {
			delete(b.rooms, room)
			continue
		}
		if keep > 0 {
			b.rooms[room] = append([]bufferedEvent(nil), events[keep:]...)
		}
	}
	return removed
}

// Sizes returns the buffered entry count per room and the number of message
// ids currently claimed.
func (b *Buffer) Sizes() (map[Room]int, int) {
	if b == nil {
		return map[Room]int{}, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[Room]int, len(b.rooms))
	for room, events := range b.rooms {
		out[room] = len(events)
	}
	return out, len(b.published)
}

// Len returns the number of entries buffered for room.
func (b *Buffer) Len(room Room) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[room])
}

// RunPruner prunes the buffer on every tick of cronExpr until ctx ends.
func (b *Buffer) RunPruner(ctx context.Context, cronExpr string) {
	logger := log.With().Str("component", "buffer_pruner").Str("cron", cronExpr).Logger()
	logger.Info().Msg("buffer pruner started")
	for {
		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			logger.Error().Err(err).Msg("next tick failed")
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				logger.Info().Msg("buffer pruner stopping")
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
			if n := b.Prune(); n > 0 {
				observability.AddBufferPruned(n)
				logger.Debug().Int("removed", n).Msg("buffer pruned")
			}
		case <-ctx.Done():
			logger.Info().Msg("buffer pruner stopping")
			return
		}
	}
}
