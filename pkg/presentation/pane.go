// Package presentation holds the client-side state machines that consume
// the messaging contracts: the conversation pane, the composer and the
// typing indicator. They hold no transport and are driven by callers.
package presentation

import (
	"sort"

	"github.com/mahaj/bizchat/pkg/model"
)

type PaneState int

const (
	NoActiveConversation PaneState = iota
	Loading
	Loaded
	LoadError
)

func (s PaneState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case LoadError:
		return "load-error"
	}
	return "no-active-conversation"
}

// Pane is the chat window for one conversation at a time.
type Pane struct {
	state          PaneState
	conversationID string
	messages       []*model.Message
	err            error
}

func (p *Pane) State() PaneState       { return p.state }
func (p *Pane) ConversationID() string { return p.conversationID }
func (p *Pane) Err() error             { return p.err }

func (p *Pane) Messages() []model.Message {
	out := make([]model.Message, len(p.messages))
	for i, m := range p.messages {
		out[i] = *m
	}
	return out
}

// Open switches the pane to conversationID and starts loading it.
func (p *Pane) Open(conversationID string) {
	p.state = Loading
	p.conversationID = conversationID
	p.messages = nil
	p.err = nil
}

func (p *Pane) Close() {
	*p = Pane{}
}

// Loaded delivers a load result. Results for a conversation that is no
// longer being loaded are ignored and false is returned.
func (p *Pane) Loaded(conversationID string, msgs []*model.Message) bool {
	if p.state != Loading || conversationID != p.conversationID {
		return false
	}
	p.messages = make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		c := *m
		p.messages = append(p.messages, &c)
	}
	sort.SliceStable(p.messages, func(i, j int) bool { return p.messages[i].Before(p.messages[j]) })
	p.state = Loaded
	return true
}

func (p *Pane) Failed(conversationID string, err error) bool {
	if p.state != Loading || conversationID != p.conversationID {
		return false
	}
	p.err = err
	p.state = LoadError
	return true
}

// Apply folds a live event into the loaded conversation and reports
// whether anything changed.
func (p *Pane) Apply(ev model.Event) bool {
	if p.state != Loaded {
		return false
	}
	switch data := ev.Data.(type) {
	case *model.Message:
		return p.insert(data)
	case model.Message:
		return p.insert(&data)
	case *model.ReadReceipt:
		return p.receipt(*data)
	case model.ReadReceipt:
		return p.receipt(data)
	case *model.MessageDeleted:
		return p.remove(*data)
	case model.MessageDeleted:
		return p.remove(data)
	}
	return false
}

func (p *Pane) insert(m *model.Message) bool {
	if m.ConversationID != p.conversationID {
		return false
	}
	for _, existing := range p.messages {
		if existing.ID == m.ID {
			return false
		}
	}
	c := *m
	i := sort.Search(len(p.messages), func(i int) bool { return c.Before(p.messages[i]) })
	p.messages = append(p.messages, nil)
	copy(p.messages[i+1:], p.messages[i:])
	p.messages[i] = &c
	return true
}

// receipt marks everything the reader did not send as read.
func (p *Pane) receipt(r model.ReadReceipt) bool {
	if r.ConversationID != p.conversationID {
		return false
	}
	changed := false
	for _, m := range p.messages {
		if m.SenderID != r.ReaderID && !m.Read {
			m.Read = true
			changed = true
		}
	}
	return changed
}

func (p *Pane) remove(d model.MessageDeleted) bool {
	if d.ConversationID != p.conversationID {
		return false
	}
	for i, m := range p.messages {
		if m.ID == d.MessageID {
			p.messages = append(p.messages[:i], p.messages[i+1:]...)
			return true
		}
	}
	return false
}
