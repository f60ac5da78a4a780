package model

import "encoding/json"

type EventName string

const (
	EventMessageNew      EventName = "message:new"
	EventMessageRead     EventName = "message:read"
	EventMessageDeleted  EventName = "message:deleted"
	EventNotificationNew EventName = "notification:new"
	EventTyping          EventName = "typing"
)

// Event is the frame written to a user's live handles.
type Event struct {
	Name EventName `json:"event"`
	Data any       `json:"data"`
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ReadReceipt is the data of a message:read event.
type ReadReceipt struct {
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
	Count          int    `json:"count"`
}

// MessageDeleted is the data of a message:deleted event.
type MessageDeleted struct {
	ConversationID string `json:"conversationId"`
	MessageID      int64  `json:"messageId"`
}

// TypingState is the data of a typing event.
type TypingState struct {
	ConversationID string   `json:"conversationId"`
	UserIDs        []string `json:"userIds"`
}

// ClientFrame is what a live client may send over its socket.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Active         bool   `json:"active"`
}

const FrameTyping = "typing"

// DecodeEvent parses a server frame, decoding Data into the typed shape
// for its event name.
func DecodeEvent(raw []byte) (Event, error) {
	var frame struct {
		Name EventName       `json:"event"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, err
	}
	var data any
	switch frame.Name {
	case EventMessageNew:
		data = &Message{}
	case EventMessageRead:
		data = &ReadReceipt{}
	case EventMessageDeleted:
		data = &MessageDeleted{}
	case EventNotificationNew:
		data = &Notification{}
	case EventTyping:
		data = &TypingState{}
	default:
		return Event{Name: frame.Name, Data: frame.Data}, nil
	}
	if err := json.Unmarshal(frame.Data, data); err != nil {
		return Event{}, err
	}
	return Event{Name: frame.Name, Data: data}, nil
}
