package store

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gocql/gocql"
	"github.com/mahaj/bizchat/pkg/db"
	"github.com/mahaj/bizchat/pkg/model"
	"github.com/pkg/errors"
)

// Scylla stores conversations in the tables created by db.Migrate.
type Scylla struct {
	s *db.Session
}

func NewScylla(session *db.Session) *Scylla {
	return &Scylla{s: session}
}

var _ ConversationStore = (*Scylla)(nil)

const (
	// readBatchSize keeps MarkRead batches well under the cluster's batch
	// size limit.
	readBatchSize = 100
	keyClaimGrace = 30 * time.Second
)

type member struct {
	userID string
	unread int
	mark   readMark
}

func (st *Scylla) CreateConversation(ctx context.Context, c *model.Conversation) error {
	key := c.Key()
	if key != "" {
		existing := map[string]interface{}{}
		applied, err := st.s.Query(`INSERT INTO conversation_keys (conv_key, conversation_id) VALUES (?, ?) IF NOT EXISTS`,
			key, c.ID).WithContext(ctx).MapScanCAS(existing)
		if err != nil {
			return errors.Wrap(err, "reserve conversation key")
		}
		if !applied {
			return ErrDuplicate
		}
	}

	b := st.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO conversations (id, type, participants, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, string(c.Type), c.Participants, c.Title, c.CreatedAt)
	for _, p := range c.Participants {
		b.Query(`INSERT INTO conversation_members (conversation_id, user_id, unread_count) VALUES (?, ?, 0)`, c.ID, p)
		b.Query(`INSERT INTO user_conversations (user_id, conversation_id) VALUES (?, ?)`, p, c.ID)
	}
	if err := st.s.ExecuteBatch(b); err != nil {
		if key != "" {
			if rerr := st.releaseKey(ctx, key, c.ID); rerr != nil {
				log.Warn("could not release conversation key", "key", key, "err", rerr)
			}
		}
		return errors.Wrap(err, "create conversation")
	}
	return nil
}

// releaseKey drops key only while it still points at conversationID.
func (st *Scylla) releaseKey(ctx context.Context, key, conversationID string) error {
	current := map[string]interface{}{}
	_, err := st.s.Query(`DELETE FROM conversation_keys WHERE conv_key = ? IF conversation_id = ?`, key, conversationID).
		WithContext(ctx).MapScanCAS(current)
	return err
}

// FindConversationByKey treats a key whose conversation was never written
// as absent. Keys older than keyClaimGrace are released so the pair can be
// created again; younger ones may still belong to a create in flight.
func (st *Scylla) FindConversationByKey(ctx context.Context, key string) (*model.Conversation, error) {
	var (
		id      string
		written int64
	)
	err := st.s.Query(`SELECT conversation_id, WRITETIME(conversation_id) FROM conversation_keys WHERE conv_key = ?`, key).
		WithContext(ctx).Scan(&id, &written)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find conversation key")
	}

	c, err := st.GetConversation(ctx, id)
	if !errors.Is(err, ErrNotFound) {
		return c, err
	}
	if time.Since(time.UnixMicro(written)) < keyClaimGrace {
		return nil, ErrNotFound
	}
	log.Warn("releasing dangling conversation key", "key", key, "conversation", id)
	if err := st.releaseKey(ctx, key, id); err != nil {
		return nil, errors.Wrap(err, "release conversation key")
	}
	return nil, ErrNotFound
}

func (st *Scylla) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	c := &model.Conversation{ID: id}
	var typ string
	err := st.s.Query(`SELECT type, participants, title, last_message, last_message_id, last_message_at, created_at
		FROM conversations WHERE id = ?`, id).WithContext(ctx).
		Scan(&typ, &c.Participants, &c.Title, &c.LastMessage, &c.LastMessageID, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get conversation")
	}
	c.Type = model.ConversationType(typ)

	members, err := st.members(ctx, id)
	if err != nil {
		return nil, err
	}
	c.UnreadCounts = make(map[string]int, len(members))
	for _, m := range members {
		c.UnreadCounts[m.userID] = m.unread
	}
	return c, nil
}

func (st *Scylla) members(ctx context.Context, conversationID string) ([]member, error) {
	iter := st.s.Query(`SELECT user_id, unread_count, last_read_at, last_read_id FROM conversation_members WHERE conversation_id = ?`,
		conversationID).WithContext(ctx).Iter()

	var (
		out []member
		m   member
	)
	for iter.Scan(&m.userID, &m.unread, &m.mark.At, &m.mark.ID) {
		out = append(out, m)
		m = member{}
	}
	return out, errors.Wrap(iter.Close(), "list conversation members")
}

func (st *Scylla) ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	iter := st.s.Query(`SELECT conversation_id FROM user_conversations WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "list user conversations")
	}

	out := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := st.GetConversation(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (st *Scylla) AppendMessage(ctx context.Context, m *model.Message, recipients []string) error {
	c, err := st.GetConversation(ctx, m.ConversationID)
	if err != nil {
		return err
	}

	b := st.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO messages (conversation_id, created_at, id, sender_id, type, content, media_url, read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.CreatedAt, m.ID, m.SenderID, string(m.Type), m.Text, m.MediaURL, m.Read)
	b.Query(`INSERT INTO message_index (id, conversation_id, created_at) VALUES (?, ?, ?)`,
		m.ID, m.ConversationID, m.CreatedAt)

	current := &model.Message{ID: c.LastMessageID, CreatedAt: c.LastMessageAt}
	if c.LastMessageID == 0 || current.Before(m) {
		c.ApplyLast(m)
		b.Query(`UPDATE conversations SET last_message = ?, last_message_id = ?, last_message_at = ? WHERE id = ?`,
			c.LastMessage, c.LastMessageID, c.LastMessageAt, c.ID)
	}
	for _, r := range recipients {
		b.Query(`UPDATE conversation_members SET unread_count = ? WHERE conversation_id = ? AND user_id = ?`,
			c.UnreadCounts[r]+1, c.ID, r)
	}
	return errors.Wrap(st.s.ExecuteBatch(b), "append message")
}

func scanMessages(iter *gocql.Iter) ([]*model.Message, error) {
	var out []*model.Message
	for {
		m := &model.Message{}
		var typ string
		if !iter.Scan(&m.ConversationID, &m.CreatedAt, &m.ID, &m.SenderID, &typ, &m.Text, &m.MediaURL, &m.Read) {
			break
		}
		m.Type = model.ContentType(typ)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, iter.Close()
}

const messageColumns = `conversation_id, created_at, id, sender_id, type, content, media_url, read`

func (st *Scylla) ListMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	iter := st.s.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?`, conversationID).
		WithContext(ctx).Iter()
	msgs, err := scanMessages(iter)
	return msgs, errors.Wrap(err, "list messages")
}

func (st *Scylla) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var (
		convID    string
		createdAt time.Time
	)
	err := st.s.Query(`SELECT conversation_id, created_at FROM message_index WHERE id = ?`, id).
		WithContext(ctx).Scan(&convID, &createdAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "lookup message")
	}

	iter := st.s.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND created_at = ? AND id = ?`,
		convID, createdAt, id).WithContext(ctx).Iter()
	msgs, err := scanMessages(iter)
	if err != nil {
		return nil, errors.Wrap(err, "get message")
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return msgs[0], nil
}

// MarkRead only reads past the caller's watermark: everything before it
// was flipped by an earlier call. Flips go out in single-partition chunks
// and the watermark moves last, so a failed call can simply be repeated.
func (st *Scylla) MarkRead(ctx context.Context, conversationID, userID string) (int, error) {
	var mark readMark
	err := st.s.Query(`SELECT last_read_at, last_read_id FROM conversation_members WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).WithContext(ctx).Scan(&mark.At, &mark.ID)
	if errors.Is(err, gocql.ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "load read mark")
	}

	msgs, err := st.messagesAfter(ctx, conversationID, mark)
	if err != nil {
		return 0, err
	}

	b := st.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	flipped := 0
	for _, m := range msgs {
		if m.SenderID == userID || m.Read {
			continue
		}
		b.Query(`UPDATE messages SET read = true WHERE conversation_id = ? AND created_at = ? AND id = ?`,
			conversationID, m.CreatedAt, m.ID)
		flipped++
		if b.Size() == readBatchSize {
			if err := st.s.ExecuteBatch(b); err != nil {
				return 0, errors.Wrap(err, "flip read flags")
			}
			b = st.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
		}
	}
	if n := len(msgs); n > 0 {
		last := msgs[n-1]
		b.Query(`UPDATE conversation_members SET unread_count = 0, last_read_at = ?, last_read_id = ? WHERE conversation_id = ? AND user_id = ?`,
			last.CreatedAt, last.ID, conversationID, userID)
	} else {
		b.Query(`UPDATE conversation_members SET unread_count = 0 WHERE conversation_id = ? AND user_id = ?`,
			conversationID, userID)
	}
	if err := st.s.ExecuteBatch(b); err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	return flipped, nil
}

func (st *Scylla) messagesAfter(ctx context.Context, conversationID string, mark readMark) ([]*model.Message, error) {
	if mark.At.IsZero() {
		return st.ListMessages(ctx, conversationID)
	}
	iter := st.s.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND (created_at, id) > (?, ?)`,
		conversationID, mark.At, mark.ID).WithContext(ctx).Iter()
	msgs, err := scanMessages(iter)
	return msgs, errors.Wrap(err, "list unread messages")
}

// DeleteMessage writes the recomputed summary before removing the rows. If
// the removal fails the message is still there and the call can be retried.
func (st *Scylla) DeleteMessage(ctx context.Context, m *model.Message) error {
	if _, err := st.GetMessage(ctx, m.ID); err != nil {
		return err
	}

	all, err := st.ListMessages(ctx, m.ConversationID)
	if err != nil {
		return err
	}
	msgs := make([]*model.Message, 0, len(all))
	for _, existing := range all {
		if existing.ID != m.ID {
			msgs = append(msgs, existing)
		}
	}
	members, err := st.members(ctx, m.ConversationID)
	if err != nil {
		return err
	}

	c := &model.Conversation{ID: m.ConversationID}
	var last *model.Message
	if n := len(msgs); n > 0 {
		last = msgs[n-1]
	}
	c.ApplyLast(last)

	b := st.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	if last == nil {
		b.Query(`UPDATE conversations SET last_message = null, last_message_id = null, last_message_at = null WHERE id = ?`, c.ID)
	} else {
		b.Query(`UPDATE conversations SET last_message = ?, last_message_id = ?, last_message_at = ? WHERE id = ?`,
			c.LastMessage, c.LastMessageID, c.LastMessageAt, c.ID)
	}
	for _, mem := range members {
		b.Query(`UPDATE conversation_members SET unread_count = ? WHERE conversation_id = ? AND user_id = ?`,
			unreadFor(mem.userID, mem.mark, msgs), c.ID, mem.userID)
	}
	if err := st.s.ExecuteBatch(b); err != nil {
		return errors.Wrap(err, "recompute conversation summary")
	}

	b = st.s.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`DELETE FROM messages WHERE conversation_id = ? AND created_at = ? AND id = ?`, m.ConversationID, m.CreatedAt, m.ID)
	b.Query(`DELETE FROM message_index WHERE id = ?`, m.ID)
	return errors.Wrap(st.s.ExecuteBatch(b), "delete message")
}
