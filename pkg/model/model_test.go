package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentValidate(t *testing.T) {
	cases := []struct {
		name    string
		content Content
		wantErr string
	}{
		{"text", Content{Type: ContentText, Text: "hi"}, ""},
		{"default type", Content{Text: "hi"}, ""},
		{"empty text", Content{Type: ContentText, Text: "   "}, "text messages require content"},
		{"image without url", Content{Type: ContentImage}, "image messages require a mediaUrl"},
		{"file without url", Content{Type: ContentFile, Text: "report"}, "file messages require a mediaUrl"},
		{"image with url", Content{Type: ContentImage, MediaURL: "https://cdn.example.com/a.png"}, ""},
		{"bad url", Content{Type: ContentImage, MediaURL: "not a url"}, "mediaUrl must be a valid URL"},
		{"unknown type", Content{Type: "video", MediaURL: "https://cdn.example.com/a.mp4"}, `unsupported message type "video"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.content.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.wantErr, err.Error())
		})
	}
}

func TestMessageSnippet(t *testing.T) {
	m := &Message{Type: ContentImage}
	assert.Equal(t, "[image]", m.Snippet())

	m = &Message{Type: ContentText, Text: strings.Repeat("é", 200)}
	assert.Equal(t, 120, len([]rune(m.Snippet())))
}

func TestMessageBefore(t *testing.T) {
	now := time.Now()
	a := &Message{ID: 2, CreatedAt: now}
	b := &Message{ID: 3, CreatedAt: now}
	c := &Message{ID: 1, CreatedAt: now.Add(time.Millisecond)}
	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
}

func TestConversationKeyAndTitle(t *testing.T) {
	c := &Conversation{Type: ConversationUserUser, Participants: []string{"bob", "alice"}}
	assert.Equal(t, "direct-user-user:alice:bob", c.Key())
	assert.Equal(t, "bob, alice", c.DisplayTitle())

	g := &Conversation{Type: ConversationGroup, Participants: []string{"a", "b", "c"}}
	assert.Empty(t, g.Key())
	assert.Equal(t, "Group (3)", g.DisplayTitle())
	assert.Equal(t, []string{"a", "c"}, g.Others("b"))
}

func TestNormalizeParticipants(t *testing.T) {
	got := NormalizeParticipants([]string{"b", " a ", "", "b", "c"})
	assert.Equal(t, []string{"b", "a", "c"}, got)
}

func TestSortByActivity(t *testing.T) {
	now := time.Now()
	convs := []*Conversation{
		{ID: "old", LastMessageAt: now.Add(-time.Hour)},
		{ID: "new", LastMessageAt: now},
		{ID: "empty"},
	}
	SortByActivity(convs)
	assert.Equal(t, "new", convs[0].ID)
	assert.Equal(t, "old", convs[1].ID)
	assert.Equal(t, "empty", convs[2].ID)
}

func TestDecodePayload(t *testing.T) {
	n := &Notification{Type: NotificationNewReview, Payload: json.RawMessage(`{"businessId":"b1","reviewId":"r1","rating":4}`)}
	p, err := n.DecodePayload()
	require.NoError(t, err)
	review, ok := p.(*ReviewPayload)
	require.True(t, ok)
	assert.Equal(t, 4, review.Rating)

	_, err = DecodePayload(NotificationNewFollower, json.RawMessage(`[1,2]`))
	assert.Error(t, err)

	_, err = DecodePayload("promo", nil)
	assert.Error(t, err)
	assert.False(t, NotificationType("promo").Valid())
	assert.True(t, NotificationAdExpired.Valid())
}

func TestDecodeEvent(t *testing.T) {
	raw, err := Event{Name: EventMessageRead, Data: ReadReceipt{ConversationID: "c1", ReaderID: "b", Count: 2}}.Encode()
	require.NoError(t, err)

	ev, err := DecodeEvent(raw)
	require.NoError(t, err)
	receipt, ok := ev.Data.(*ReadReceipt)
	require.True(t, ok)
	assert.Equal(t, "b", receipt.ReaderID)
	assert.Equal(t, 2, receipt.Count)
}
