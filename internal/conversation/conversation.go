// Package conversation keeps per-conversation turn history in a key-value
// store with a rolling retention window.
//
// Writes are read-modify-write on the full serialized history. Two writers
// appending to the same conversation at the same time can overwrite each
// other and lose a message: the last write wins. Conversations are expected
// to have a single active user, so this is accepted rather than serialized.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultTTL = 24 * time.Hour
	keyPrefix  = "conv:"
)

var ErrInvalidRole = errors.New("role must be user or assistant")

type Message struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// KV is the subset of a cache store the history needs.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
}

// StoreError reports an unavailable or inconsistent backing store.
type StoreError struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("conversation store %s %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

type Options struct {
	TTL   time.Duration
	NewID func() string
	Now   func() time.Time
}

type Store struct {
	kv    KV
	ttl   time.Duration
	newID func() string
	now   func() time.Time
}

func NewStore(kv KV, opts Options) *Store {
	store := &Store{kv: kv, ttl: opts.TTL, newID: opts.NewID, now: opts.Now}
	if store.ttl <= 0 {
		store.ttl = DefaultTTL
	}
	if store.newID == nil {
		store.newID = uuid.NewString
	}
	if store.now == nil {
		store.now = time.Now
	}
	return store
}

// CreateConversation allocates an identifier. Nothing is written until the
// first message is added.
func (s *Store) CreateConversation() string {
	return s.newID()
}

func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string) error {
	message, err := s.newMessage(role, content)
	if err != nil {
		return err
	}
	return s.append(ctx, conversationID, message)
}

// AddTurn appends a user message and its assistant reply with a single write.
// The read-modify-write is not serialized: concurrent turns on the same
// conversation are last-write-wins.
func (s *Store) AddTurn(ctx context.Context, conversationID, userContent, assistantContent string) error {
	user, err := s.newMessage(RoleUser, userContent)
	if err != nil {
		return err
	}
	assistant, err := s.newMessage(RoleAssistant, assistantContent)
	if err != nil {
		return err
	}
	return s.append(ctx, conversationID, user, assistant)
}

// GetConversationHistory returns the stored messages in order. lastN <= 0
// returns all of them. An unknown or expired conversation yields an empty
// slice.
func (s *Store) GetConversationHistory(ctx context.Context, conversationID string, lastN int) ([]Message, error) {
	history, err := s.load(ctx, conversationID)
	if err != nil {
		return []Message{}, err
	}
	if lastN > 0 && len(history) > lastN {
		history = history[len(history)-lastN:]
	}
	return history, nil
}

func (s *Store) newMessage(role, content string) (Message, error) {
	if role != RoleUser && role != RoleAssistant {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	now := s.now()
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: float64(now.Unix()) + float64(now.Nanosecond())/1e9,
	}, nil
}

func (s *Store) append(ctx context.Context, conversationID string, messages ...Message) error {
	history, err := s.load(ctx, conversationID)
	if err != nil {
		return err
	}
	history = append(history, messages...)

	payload, err := json.Marshal(history)
	if err != nil {
		return &StoreError{Op: "encode", ConversationID: conversationID, Err: err}
	}
	if err := s.kv.SetEx(ctx, key(conversationID), string(payload), s.ttl); err != nil {
		return &StoreError{Op: "write", ConversationID: conversationID, Err: err}
	}
	return nil
}

func (s *Store) load(ctx context.Context, conversationID string) ([]Message, error) {
	raw, found, err := s.kv.Get(ctx, key(conversationID))
	if err != nil {
		return nil, &StoreError{Op: "read", ConversationID: conversationID, Err: err}
	}
	if !found || raw == "" {
		return []Message{}, nil
	}
	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, &StoreError{Op: "decode", ConversationID: conversationID, Err: err}
	}
	if history == nil {
		history = []Message{}
	}
	return history, nil
}

func key(conversationID string) string {
	return keyPrefix + conversationID
}
