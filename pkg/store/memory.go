package store

import (
	"context"
	"sort"
	"sync"

	"github.com/mahaj/bizchat/pkg/model"
)

type memConversation struct {
	conv     model.Conversation
	marks    map[string]readMark
	messages []*model.Message // ascending (CreatedAt, ID)
}

// Memory keeps conversations in process memory. It backs tests and
// single-node development setups.
type Memory struct {
	mu      sync.RWMutex
	convs   map[string]*memConversation
	byKey   map[string]string
	byUser  map[string]map[string]struct{}
	ownerOf map[int64]string // message id -> conversation id
}

func NewMemory() *Memory {
	return &Memory{
		convs:   make(map[string]*memConversation),
		byKey:   make(map[string]string),
		byUser:  make(map[string]map[string]struct{}),
		ownerOf: make(map[int64]string),
	}
}

var _ ConversationStore = (*Memory)(nil)

func copyConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.UnreadCounts = make(map[string]int, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	return &out
}

func copyMessage(m *model.Message) *model.Message {
	out := *m
	return &out
}

func (s *Memory) CreateConversation(_ context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key := c.Key(); key != "" {
		if _, ok := s.byKey[key]; ok {
			return ErrDuplicate
		}
		s.byKey[key] = c.ID
	}

	mc := &memConversation{conv: *copyConversation(c), marks: make(map[string]readMark)}
	for _, p := range c.Participants {
		if _, ok := mc.conv.UnreadCounts[p]; !ok {
			mc.conv.UnreadCounts[p] = 0
		}
		if s.byUser[p] == nil {
			s.byUser[p] = make(map[string]struct{})
		}
		s.byUser[p][c.ID] = struct{}{}
	}
	s.convs[c.ID] = mc
	return nil
}

func (s *Memory) FindConversationByKey(ctx context.Context, key string) (*model.Conversation, error) {
	s.mu.RLock()
	id, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

func (s *Memory) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(&mc.conv), nil
}

func (s *Memory) ListConversations(_ context.Context, userID string) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Conversation, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		out = append(out, copyConversation(&s.convs[id].conv))
	}
	return out, nil
}

func (s *Memory) AppendMessage(_ context.Context, m *model.Message, recipients []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.convs[m.ConversationID]
	if !ok {
		return ErrNotFound
	}

	stored := copyMessage(m)
	i := sort.Search(len(mc.messages), func(i int) bool { return stored.Before(mc.messages[i]) })
	mc.messages = append(mc.messages, nil)
	copy(mc.messages[i+1:], mc.messages[i:])
	mc.messages[i] = stored
	s.ownerOf[m.ID] = m.ConversationID

	if i == len(mc.messages)-1 {
		mc.conv.ApplyLast(stored)
	}
	for _, r := range recipients {
		mc.conv.UnreadCounts[r]++
	}
	return nil
}

func (s *Memory) ListMessages(_ context.Context, conversationID string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mc, ok := s.convs[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*model.Message, len(mc.messages))
	for i, m := range mc.messages {
		out[i] = copyMessage(m)
	}
	return out, nil
}

func (s *Memory) GetMessage(_ context.Context, id int64) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convID, ok := s.ownerOf[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, m := range s.convs[convID].messages {
		if m.ID == id {
			return copyMessage(m), nil
		}
	}
	return nil, ErrNotFound
}

func (s *Memory) MarkRead(_ context.Context, conversationID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.convs[conversationID]
	if !ok {
		return 0, ErrNotFound
	}

	flipped := 0
	for _, m := range mc.messages {
		if m.SenderID != userID && !m.Read {
			m.Read = true
			flipped++
		}
	}
	if n := len(mc.messages); n > 0 {
		last := mc.messages[n-1]
		mc.marks[userID] = readMark{At: last.CreatedAt, ID: last.ID}
	}
	mc.conv.UnreadCounts[userID] = 0
	return flipped, nil
}

func (s *Memory) DeleteMessage(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mc, ok := s.convs[m.ConversationID]
	if !ok {
		return ErrNotFound
	}

	idx := -1
	for i, existing := range mc.messages {
		if existing.ID == m.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	mc.messages = append(mc.messages[:idx], mc.messages[idx+1:]...)
	delete(s.ownerOf, m.ID)

	var last *model.Message
	if n := len(mc.messages); n > 0 {
		last = mc.messages[n-1]
	}
	mc.conv.ApplyLast(last)
	for _, p := range mc.conv.Participants {
		mc.conv.UnreadCounts[p] = unreadFor(p, mc.marks[p], mc.messages)
	}
	return nil
}
