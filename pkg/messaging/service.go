// Package messaging orchestrates conversations: listing, sending, read
// receipts, deletes and typing, with live pushes after every write.
package messaging

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/mahaj/bizchat/pkg/apperr"
	"github.com/mahaj/bizchat/pkg/keylock"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/mahaj/bizchat/pkg/push"
	"github.com/mahaj/bizchat/pkg/snowflake"
	"github.com/mahaj/bizchat/pkg/store"
	"github.com/pkg/errors"
)

const typingTTL = 5 * time.Second

// IDGenerator hands out message ids. *snowflake.Node is the production one;
// replicas each run their own node.
type IDGenerator interface {
	Generate() int64
}

type Service struct {
	store  store.ConversationStore
	locks  keylock.Locker
	ids    IDGenerator
	pusher push.Pusher
	typing *typingTracker
	now    func() time.Time
}

func NewService(st store.ConversationStore, locks keylock.Locker, ids IDGenerator, pusher push.Pusher) *Service {
	return &Service{
		store:  st,
		locks:  locks,
		ids:    ids,
		pusher: pusher,
		typing: newTypingTracker(typingTTL),
		now:    time.Now,
	}
}

// ListOptions bounds ListConversations. A zero Limit returns everything.
type ListOptions struct {
	Limit int
}

// CreateConversation opens a conversation between the caller and
// participants. Asking for a direct conversation that already exists
// returns the existing one.
func (s *Service) CreateConversation(ctx context.Context, userID string, typ model.ConversationType, participants []string, title string) (*model.Conversation, error) {
	if !typ.Valid() {
		return nil, apperr.New(apperr.KindValidation, "unsupported conversation type %q", typ)
	}
	members := model.NormalizeParticipants(append([]string{userID}, participants...))
	switch {
	case typ.Direct() && len(members) != 2:
		return nil, apperr.New(apperr.KindValidation, "direct conversations need exactly two participants")
	case len(members) < 2:
		return nil, apperr.New(apperr.KindValidation, "a conversation needs at least two participants")
	}

	c := &model.Conversation{
		ID:           uuid.NewString(),
		Type:         typ,
		Participants: members,
		Title:        title,
		UnreadCounts: make(map[string]int, len(members)),
		CreatedAt:    s.now().UTC(),
	}
	for _, m := range members {
		c.UnreadCounts[m] = 0
	}

	if key := c.Key(); key != "" {
		existing, err := s.store.FindConversationByKey(ctx, key)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Internal(errors.Wrap(err, "find conversation"))
		}
	}

	err := s.store.CreateConversation(ctx, c)
	if errors.Is(err, store.ErrDuplicate) {
		// lost a race with another create for the same pair
		existing, err := s.store.FindConversationByKey(ctx, c.Key())
		if err != nil {
			return nil, apperr.Internal(errors.Wrap(err, "find conversation"))
		}
		return existing, nil
	}
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "create conversation"))
	}
	log.Info("conversation created", "id", c.ID, "type", c.Type, "participants", len(c.Participants))
	return c, nil
}

// ListConversations returns the caller's conversations, most recently
// active first.
func (s *Service) ListConversations(ctx context.Context, userID string, opts ListOptions) ([]*model.Conversation, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "list conversations"))
	}
	model.SortByActivity(convs)
	if opts.Limit > 0 && len(convs) > opts.Limit {
		convs = convs[:opts.Limit]
	}
	return convs, nil
}

func (s *Service) GetConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	c, err := s.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "get conversation"))
	}
	if !c.HasParticipant(userID) {
		return nil, apperr.Forbidden("not a participant in this conversation")
	}
	return c, nil
}

// ListMessages returns the conversation's messages oldest first.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID string) ([]*model.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "list messages"))
	}
	return msgs, nil
}

func (s *Service) lock(ctx context.Context, conversationID string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, conversationID)
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "lock conversation"))
	}
	return unlock, nil
}

// SendMessage stores a message from userID and pushes message:new to the
// other participants once the write has landed.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID string, content model.Content) (*model.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if err := content.Validate(); err != nil {
		return nil, apperr.Validation(err)
	}

	unlock, err := s.lock(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	m, recipients, err := s.appendLocked(ctx, userID, conversationID, content)
	unlock()
	if err != nil {
		return nil, err
	}

	s.notify(ctx, recipients, model.Event{Name: model.EventMessageNew, Data: m})
	if s.typing.stop(conversationID, userID) {
		s.broadcastTyping(ctx, conversationID, recipients)
	}
	return m, nil
}

func (s *Service) appendLocked(ctx context.Context, userID, conversationID string, content model.Content) (*model.Message, []string, error) {
	c, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, apperr.Internal(errors.Wrap(err, "reload conversation"))
	}

	id := s.ids.Generate()
	createdAt := snowflake.Time(id)
	if createdAt.Before(c.LastMessageAt) {
		createdAt = c.LastMessageAt
	}
	// another replica's clock may be ahead; the new message must still sort last
	if createdAt.Equal(c.LastMessageAt) && id < c.LastMessageID {
		createdAt = createdAt.Add(time.Millisecond)
	}
	m := &model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       userID,
		Type:           content.Type,
		Text:           content.Text,
		MediaURL:       content.MediaURL,
		CreatedAt:      createdAt,
	}
	recipients := c.Others(userID)
	if err := s.store.AppendMessage(ctx, m, recipients); err != nil {
		return nil, nil, apperr.Internal(errors.Wrap(err, "append message"))
	}
	return m, recipients, nil
}

// MarkRead marks every message the caller received in the conversation as
// read and returns how many flipped.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID string) (int, error) {
	c, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}

	unlock, err := s.lock(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	flipped, err := s.store.MarkRead(ctx, conversationID, userID)
	unlock()
	if err != nil {
		return 0, apperr.Internal(errors.Wrap(err, "mark read"))
	}

	s.notify(ctx, c.Others(userID), model.Event{
		Name: model.EventMessageRead,
		Data: model.ReadReceipt{ConversationID: conversationID, ReaderID: userID, Count: flipped},
	})
	return flipped, nil
}

// DeleteMessage removes one of the caller's own messages.
func (s *Service) DeleteMessage(ctx context.Context, userID string, messageID int64) error {
	m, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != userID {
		return apperr.Forbidden("only the sender can delete a message")
	}

	unlock, err := s.lock(ctx, m.ConversationID)
	if err != nil {
		return err
	}
	err = s.deleteLocked(ctx, messageID)
	unlock()
	if err != nil {
		return err
	}

	c, err := s.store.GetConversation(ctx, m.ConversationID)
	if err != nil {
		log.Warn("deleted message but could not load conversation for push", "conversation", m.ConversationID, "err", err)
		return nil
	}
	s.notify(ctx, c.Others(userID), model.Event{
		Name: model.EventMessageDeleted,
		Data: model.MessageDeleted{ConversationID: m.ConversationID, MessageID: messageID},
	})
	return nil
}

func (s *Service) deleteLocked(ctx context.Context, messageID int64) error {
	// a concurrent delete may have won while we waited for the lock
	m, err := s.message(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMessage(ctx, m); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("message not found")
		}
		return apperr.Internal(errors.Wrap(err, "delete message"))
	}
	return nil
}

func (s *Service) message(ctx context.Context, id int64) (*model.Message, error) {
	m, err := s.store.GetMessage(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, apperr.Internal(errors.Wrap(err, "get message"))
	}
	return m, nil
}

// Typing records whether userID is composing in the conversation and
// tells the other participants. Typing state lapses on its own after a
// few seconds without a refresh.
func (s *Service) Typing(ctx context.Context, userID, conversationID string, active bool) error {
	c, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	recipients := c.Others(userID)

	if active {
		s.typing.start(conversationID, userID, func() {
			s.broadcastTyping(context.Background(), conversationID, recipients)
		})
	} else if !s.typing.stop(conversationID, userID) {
		return nil
	}
	s.broadcastTyping(ctx, conversationID, recipients)
	return nil
}

func (s *Service) broadcastTyping(ctx context.Context, conversationID string, recipients []string) {
	s.notify(ctx, recipients, model.Event{
		Name: model.EventTyping,
		Data: model.TypingState{ConversationID: conversationID, UserIDs: s.typing.users(conversationID)},
	})
}

// notify is best effort. The write it follows has already succeeded.
func (s *Service) notify(ctx context.Context, userIDs []string, ev model.Event) {
	if len(userIDs) == 0 {
		return
	}
	// delivery outlives a caller that hangs up once its write is stored
	if err := s.pusher.Push(context.WithoutCancel(ctx), userIDs, ev); err != nil {
		log.Warn("live push failed", "event", ev.Name, "kind", apperr.KindTransientDelivery, "err", err)
	}
}
