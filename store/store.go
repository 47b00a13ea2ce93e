// Package store implements the client-side message store for the back-office
// front ends. A Store keeps the signed-in user's messages in memory, loads the
// durable local cache at start so consumers can render before the network
// answers, and re-fetches from the remote API on a fixed interval. Writes go
// through a uniform two-tier contract: try the remote when a recent liveness
// probe says it is reachable, and keep the local cache good enough to rebuild
// the same state after a restart either way.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// A Remote provides the network-backed storage behind the back-office API.
// Records travel as raw JSON because the same contract serves every resource
// collection, not just messages.
type Remote interface {
	Ping(ctx context.Context) error
	GetAll(ctx context.Context, resource string) ([]json.RawMessage, error)
	Save(ctx context.Context, resource string, record any) (json.RawMessage, error)
	Update(ctx context.Context, resource, id string, patch any) error
	MarkAllRead(ctx context.Context, username string) error
}

// A Cache provides the durable local cache. A restart must be able to rebuild
// the last observed state from it without the remote being reachable.
type Cache interface {
	GetMessages(ctx context.Context) ([]Message, error)
	PutMessages(ctx context.Context, msgs []Message) error
	DeleteUnreadIndex(ctx context.Context, username string) error
}

const resourceMessages = "messages"

var errRemoteUnavailable = errors.New("remote unavailable")

// Store owns the in-memory message list for one session.
//
// The zero durations fall back to the defaults the legacy clients used: a 30
// second poll, a 30 second probe window, 3 second probe and read-all budgets
// and a 5 second budget for storage calls.
type Store struct {
	Logger  *slog.Logger
	Remote  Remote
	Cache   Cache
	Session Session

	PollInterval   time.Duration
	ProbeTTL       time.Duration
	ProbeTimeout   time.Duration
	CallTimeout    time.Duration
	ReadAllTimeout time.Duration

	mu   sync.Mutex
	msgs []Message

	probeMu   sync.Mutex
	available bool
	probedAt  time.Time

	stop context.CancelFunc
	done chan struct{}
}

// Start loads the cached messages into memory and begins polling the remote.
// The first remote fetch happens asynchronously; Start never blocks on the
// network. Calling Start twice is a no-op.
func (s *Store) Start(ctx context.Context) {
	if s.done != nil {
		return
	}

	cached, err := s.Cache.GetMessages(ctx)
	if err != nil {
		// A malformed or unreachable cache degrades to an empty list; the
		// poll loop repopulates it.
		s.Logger.Error("Could not read cached messages", "error", err.Error())
		cached = nil
	}
	s.mu.Lock()
	s.msgs = cached
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	s.done = make(chan struct{})
	go s.poll(runCtx)
}

// Close stops the poll loop and waits for it to exit. It is idempotent and
// safe to call on a store that was never started.
func (s *Store) Close() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
}

func (s *Store) poll(ctx context.Context) {
	defer close(s.done)

	s.refresh(ctx)
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh fetches the full message set and replaces the in-memory list when
// it structurally differs. Fetch failures keep the last good state; the next
// tick is the retry.
func (s *Store) refresh(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()

	raw, err := s.Remote.GetAll(callCtx, resourceMessages)
	if err != nil {
		s.Logger.Warn("Could not fetch messages", "error", err.Error())
		return
	}

	fetched := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal(r, &m); err != nil {
			s.Logger.Warn("Skipping malformed message record", "error", err.Error())
			continue
		}
		fetched = append(fetched, m)
	}

	s.mu.Lock()
	changed := !messagesEqual(s.msgs, fetched)
	if changed {
		s.msgs = fetched
	}
	s.mu.Unlock()

	if changed {
		if err := s.Cache.PutMessages(ctx, fetched); err != nil {
			s.Logger.Error("Could not cache messages", "error", err.Error())
		}
	}
}

// Send constructs a message from the current user to the given peer and
// persists it. If the remote save fails the message gets a locally generated
// id and lives in the cache until the next successful sync; the caller gets a
// usable message either way. The returned error is non-nil only when the
// remote save failed and the cache write failed too.
func (s *Store) Send(ctx context.Context, to Peer, content Content, notify bool) (Message, error) {
	msg := Message{
		Sender:       s.Session.Username,
		SenderName:   s.Session.Name,
		SenderRole:   s.Session.Role,
		Receiver:     to.ID,
		ReceiverName: to.Name,
		ReceiverRole: to.Role,
		Content:      EncodeContent(content),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Notify:       notify,
	}

	saved, saveErr := s.saveRemote(ctx, msg)
	if saveErr != nil {
		s.Logger.Warn("Falling back to local save", "error", saveErr.Error())
		msg.ID = localID()
	} else {
		msg = saved
	}

	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.Cache.PutMessages(ctx, snapshot); err != nil {
		s.Logger.Error("Could not cache messages", "error", err.Error())
		if saveErr != nil {
			return msg, fmt.Errorf("save message: %w", err)
		}
	}
	return msg, nil
}

func (s *Store) saveRemote(ctx context.Context, msg Message) (Message, error) {
	if !s.reachable(ctx) {
		return Message{}, errRemoteUnavailable
	}
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()

	raw, err := s.Remote.Save(callCtx, resourceMessages, msg)
	if err != nil {
		return Message{}, err
	}
	var saved Message
	if err := json.Unmarshal(raw, &saved); err != nil {
		return Message{}, fmt.Errorf("decode saved message: %w", err)
	}
	if saved.ID == "" {
		return Message{}, errors.New("remote returned message without id")
	}
	return saved, nil
}

// MarkRead flips the read flag on the message with the given id. Unknown ids
// and already-read messages are silent no-ops. Persistence failures degrade to
// a full cache rewrite so the flag survives a restart.
func (s *Store) MarkRead(ctx context.Context, id string) {
	s.mu.Lock()
	idx := -1
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || s.msgs[idx].Read {
		s.mu.Unlock()
		return
	}
	s.msgs[idx].Read = true
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if s.reachable(ctx) {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
		defer cancel()
		err := s.Remote.Update(callCtx, resourceMessages, id, map[string]any{"read": true})
		if err == nil {
			return
		}
		s.Logger.Warn("Could not update message remotely", "error", err.Error())
	}
	if err := s.Cache.PutMessages(ctx, snapshot); err != nil {
		s.Logger.Error("Could not cache messages", "error", err.Error())
	}
}

// MarkAllRead marks every message addressed to the current user as read,
// drops the per-user unread index, and notifies the remote without waiting
// for it. The cache rewrite happens regardless of the remote outcome.
func (s *Store) MarkAllRead(ctx context.Context) {
	s.mu.Lock()
	for i := range s.msgs {
		if s.msgs[i].Receiver == s.Session.Username {
			s.msgs[i].Read = true
		}
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.Cache.DeleteUnreadIndex(ctx, s.Session.Username); err != nil {
		s.Logger.Warn("Could not clear unread index", "error", err.Error())
	}

	if s.reachable(ctx) {
		go func() {
			callCtx, cancel := context.WithTimeout(context.Background(), s.readAllTimeout())
			defer cancel()
			if err := s.Remote.MarkAllRead(callCtx, s.Session.Username); err != nil {
				s.Logger.Warn("Could not mark messages read remotely", "error", err.Error())
			}
		}()
	}

	if err := s.Cache.PutMessages(ctx, snapshot); err != nil {
		s.Logger.Error("Could not cache messages", "error", err.Error())
	}
}

// UnreadMessages returns the messages addressed to the current user that are
// unread and were sent with the notify flag. Messages sent with notify off
// never appear here regardless of read state.
func (s *Store) UnreadMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.msgs {
		if m.Receiver == s.Session.Username && !m.Read && m.Notify {
			out = append(out, m)
		}
	}
	return out
}

// UserMessages returns every message the current user sent or received.
func (s *Store) UserMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.msgs {
		if m.Sender == s.Session.Username || m.Receiver == s.Session.Username {
			out = append(out, m)
		}
	}
	return out
}

// Conversation returns the messages between the current user and peer in
// ascending timestamp order. Timestamps that do not parse compare equal, so a
// bad stamp never reorders the rest of the thread.
func (s *Store) Conversation(peer string) []Message {
	me := s.Session.Username
	s.mu.Lock()
	var out []Message
	for _, m := range s.msgs {
		if (m.Sender == me && m.Receiver == peer) || (m.Sender == peer && m.Receiver == me) {
			out = append(out, m)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		ti, errI := time.Parse(time.RFC3339, out[i].Timestamp)
		tj, errJ := time.Parse(time.RFC3339, out[j].Timestamp)
		if errI != nil || errJ != nil {
			return false
		}
		return ti.Before(tj)
	})
	return out
}

// reachable reports whether the remote answered a liveness probe recently.
// The result is trusted for ProbeTTL, so a flapping server costs at most one
// probe per window.
func (s *Store) reachable(ctx context.Context) bool {
	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	if !s.probedAt.IsZero() && time.Since(s.probedAt) < s.probeTTL() {
		return s.available
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout())
	defer cancel()
	err := s.Remote.Ping(probeCtx)
	s.probedAt = time.Now()
	s.available = err == nil
	if err != nil {
		s.Logger.Warn("Remote unavailable", "error", err.Error())
	}
	return s.available
}

func (s *Store) snapshotLocked() []Message {
	snapshot := make([]Message, len(s.msgs))
	copy(snapshot, s.msgs)
	return snapshot
}

func messagesEqual(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func localID() string {
	return fmt.Sprintf("local-%d", time.Now().UnixMilli())
}

func (s *Store) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return 30 * time.Second
}

func (s *Store) probeTTL() time.Duration {
	if s.ProbeTTL > 0 {
		return s.ProbeTTL
	}
	return 30 * time.Second
}

func (s *Store) probeTimeout() time.Duration {
	if s.ProbeTimeout > 0 {
		return s.ProbeTimeout
	}
	return 3 * time.Second
}

func (s *Store) callTimeout() time.Duration {
	if s.CallTimeout > 0 {
		return s.CallTimeout
	}
	return 5 * time.Second
}

func (s *Store) readAllTimeout() time.Duration {
	if s.ReadAllTimeout > 0 {
		return s.ReadAllTimeout
	}
	return 3 * time.Second
}
