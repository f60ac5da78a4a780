package presentation

import (
	"fmt"

	"github.com/mahaj/bizchat/pkg/model"
)

// TypingIndicator tracks who is typing per conversation, hiding the viewer.
type TypingIndicator struct {
	self   string
	byConv map[string][]string
}

func NewTypingIndicator(self string) *TypingIndicator {
	return &TypingIndicator{self: self, byConv: make(map[string][]string)}
}

func (t *TypingIndicator) Apply(ev model.Event) bool {
	var state model.TypingState
	switch data := ev.Data.(type) {
	case *model.TypingState:
		state = *data
	case model.TypingState:
		state = data
	default:
		return false
	}

	users := make([]string, 0, len(state.UserIDs))
	for _, id := range state.UserIDs {
		if id != t.self {
			users = append(users, id)
		}
	}
	if len(users) == 0 {
		delete(t.byConv, state.ConversationID)
	} else {
		t.byConv[state.ConversationID] = users
	}
	return true
}

func (t *TypingIndicator) Typing(conversationID string) []string {
	return append([]string(nil), t.byConv[conversationID]...)
}

// Label renders the indicator line, or "" when nobody is typing.
func (t *TypingIndicator) Label(conversationID string) string {
	users := t.byConv[conversationID]
	switch len(users) {
	case 0:
		return ""
	case 1:
		return users[0] + " is typing..."
	case 2:
		return users[0] + " and " + users[1] + " are typing..."
	}
	return fmt.Sprintf("%s and %d others are typing...", users[0], len(users)-1)
}
