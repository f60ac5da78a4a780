package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type ConversationType string

const (
	ConversationBusinessCustomer ConversationType = "direct-business-customer"
	ConversationUserUser         ConversationType = "direct-user-user"
	ConversationGroup            ConversationType = "group"
)

func (t ConversationType) Valid() bool {
	switch t {
	case ConversationBusinessCustomer, ConversationUserUser, ConversationGroup:
		return true
	}
	return false
}

// Direct conversations have exactly two participants and are unique per pair.
func (t ConversationType) Direct() bool {
	return t == ConversationBusinessCustomer || t == ConversationUserUser
}

type Conversation struct {
	ID            string           `json:"id"`
	Type          ConversationType `json:"type"`
	Participants  []string         `json:"participants"`
	Title         string           `json:"title"`
	LastMessage   string           `json:"lastMessage"`
	LastMessageID int64            `json:"lastMessageId,omitempty"`
	LastMessageAt time.Time        `json:"lastMessageAt"`
	UnreadCounts  map[string]int   `json:"unreadCount"`
	CreatedAt     time.Time        `json:"createdAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID, in display order.
func (c *Conversation) Others(userID string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

// Key identifies a direct conversation by its participant set. Group
// conversations have no key since several groups may share members.
func (c *Conversation) Key() string {
	if !c.Type.Direct() {
		return ""
	}
	ids := append([]string(nil), c.Participants...)
	sort.Strings(ids)
	return string(c.Type) + ":" + strings.Join(ids, ":")
}

func (c *Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	if c.Type == ConversationGroup {
		return fmt.Sprintf("Group (%d)", len(c.Participants))
	}
	return strings.Join(c.Participants, ", ")
}

// ApplyLast sets the denormalized summary from m, or clears it when m is nil.
func (c *Conversation) ApplyLast(m *Message) {
	if m == nil {
		c.LastMessage = ""
		c.LastMessageID = 0
		c.LastMessageAt = time.Time{}
		return
	}
	c.LastMessage = m.Snippet()
	c.LastMessageID = m.ID
	c.LastMessageAt = m.CreatedAt
}

// NormalizeParticipants drops blanks and duplicates while keeping first-seen order.
func NormalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SortByActivity orders conversations most recent first.
func SortByActivity(convs []*Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
