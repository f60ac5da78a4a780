package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type NotificationType string

const (
	NotificationNewReview            NotificationType = "new-review"
	NotificationNewMessage           NotificationType = "new-message"
	NotificationSubscriptionExpiring NotificationType = "subscription-expiring"
	NotificationNewFollower          NotificationType = "new-follower"
	NotificationAdExpired            NotificationType = "ad-expired"
)

type Notification struct {
	ID          int64            `json:"id" gorm:"primaryKey;autoIncrement:false"`
	RecipientID string           `json:"recipientId" gorm:"not null;index:idx_notifications_recipient"`
	Type        NotificationType `json:"type" gorm:"size:40;not null"`
	Title       string           `json:"title" gorm:"not null"`
	Message     string           `json:"message"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	Read        bool             `json:"read" gorm:"default:false;index"`
	CreatedAt   time.Time        `json:"createdAt" gorm:"index"`
}

// ReviewPayload accompanies new-review.
type ReviewPayload struct {
	BusinessID string `json:"businessId"`
	ReviewID   string `json:"reviewId"`
	Rating     int    `json:"rating"`
}

// MessagePayload accompanies new-message.
type MessagePayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      int64  `json:"messageId"`
	SenderID       string `json:"senderId"`
}

// SubscriptionPayload accompanies subscription-expiring.
type SubscriptionPayload struct {
	PlanID    string    `json:"planId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FollowerPayload accompanies new-follower.
type FollowerPayload struct {
	FollowerID string `json:"followerId"`
}

// AdPayload accompanies ad-expired.
type AdPayload struct {
	AdID      string    `json:"adId"`
	ExpiredAt time.Time `json:"expiredAt"`
}

func (t NotificationType) Valid() bool {
	_, err := t.payloadTarget()
	return err == nil
}

func (t NotificationType) payloadTarget() (any, error) {
	switch t {
	case NotificationNewReview:
		return &ReviewPayload{}, nil
	case NotificationNewMessage:
		return &MessagePayload{}, nil
	case NotificationSubscriptionExpiring:
		return &SubscriptionPayload{}, nil
	case NotificationNewFollower:
		return &FollowerPayload{}, nil
	case NotificationAdExpired:
		return &AdPayload{}, nil
	}
	return nil, fmt.Errorf("unknown notification type %q", t)
}

// DecodePayload decodes raw into the payload shape for t. An empty payload
// decodes to the zero value of that shape.
func DecodePayload(t NotificationType, raw json.RawMessage) (any, error) {
	target, err := t.payloadTarget()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return target, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", t, err)
	}
	return target, nil
}

func (n *Notification) DecodePayload() (any, error) {
	return DecodePayload(n.Type, n.Payload)
}

// DomainEvent is what producers outside this subsystem publish to request
// a notification.
type DomainEvent struct {
	RecipientID string           `json:"recipientId"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
}
