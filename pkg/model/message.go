package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// snippetLen caps the denormalized lastMessage preview.
const snippetLen = 120

type Message struct {
	ID             int64       `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	Type           ContentType `json:"type"`
	Text           string      `json:"content,omitempty"`
	MediaURL       string      `json:"mediaUrl,omitempty"`
	Read           bool        `json:"read"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Before reports whether m sorts before o in (CreatedAt, ID) order.
func (m *Message) Before(o *Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// Snippet is the preview stored on the owning conversation.
func (m *Message) Snippet() string {
	text := strings.TrimSpace(m.Text)
	if text == "" && m.Type != ContentText {
		return "[" + string(m.Type) + "]"
	}
	if utf8.RuneCountInString(text) <= snippetLen {
		return text
	}
	return string([]rune(text)[:snippetLen])
}

// Content is what a sender submits.
type Content struct {
	Type     ContentType `json:"type" validate:"required,oneof=text image file"`
	Text     string      `json:"content" validate:"required_if=Type text,max=4000"`
	MediaURL string      `json:"mediaUrl" validate:"required_unless=Type text,omitempty,url"`
}

var validate = validator.New()

// Validate checks the per-type content rules. Text messages need text,
// image and file messages need a media URL.
func (c *Content) Validate() error {
	if c.Type == "" {
		c.Type = ContentText
	}
	if c.Type == ContentText && strings.TrimSpace(c.Text) == "" {
		c.Text = ""
	}
	if err := validate.Struct(c); err != nil {
		return describe(c, err)
	}
	return nil
}

func describe(c *Content, err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err
	}
	f := fields[0]
	switch f.Field() {
	case "Type":
		return fmt.Errorf("unsupported message type %q", c.Type)
	case "Text":
		if f.Tag() == "max" {
			return errors.New("message content is too long")
		}
		return errors.New("text messages require content")
	case "MediaURL":
		if f.Tag() == "url" {
			return errors.New("mediaUrl must be a valid URL")
		}
		return fmt.Errorf("%s messages require a mediaUrl", c.Type)
	}
	return err
}
