package presentation

import (
	"errors"
	"strconv"

	"github.com/mahaj/bizchat/pkg/model"
)

type ComposerState int

const (
	Idle ComposerState = iota
	Sending
	SendError
)

func (s ComposerState) String() string {
	switch s {
	case Sending:
		return "sending"
	case SendError:
		return "send-error"
	}
	return "idle"
}

type EntryStatus int

const (
	EntryPending EntryStatus = iota
	EntrySent
	EntryFailed
)

var (
	ErrComposerBusy   = errors.New("composer: a send is already in flight")
	ErrNothingToRetry = errors.New("composer: no failed send to retry")
	ErrUnknownEntry   = errors.New("composer: unknown or settled entry")
)

// Entry is a message shown in the pane before, during and after its send.
type Entry struct {
	TempID  string
	Content model.Content
	Status  EntryStatus
	Message *model.Message
	Err     error
}

// ID is the server id once the send succeeded, the temporary id before.
func (e Entry) ID() string {
	if e.Message != nil {
		return strconv.FormatInt(e.Message.ID, 10)
	}
	return e.TempID
}

// Composer drives optimistic sends: Submit shows the message right away,
// Succeeded swaps in the server copy and Failed keeps the text for Retry.
type Composer struct {
	state   ComposerState
	draft   model.Content
	entries []*Entry
	active  *Entry
	seq     int
}

func (c *Composer) State() ComposerState { return c.state }
func (c *Composer) Draft() model.Content { return c.draft }

func (c *Composer) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = *e
	}
	return out
}

// Submit appends an optimistic entry and returns its temporary id.
func (c *Composer) Submit(content model.Content) (string, error) {
	if c.state != Idle {
		return "", ErrComposerBusy
	}
	c.seq++
	e := &Entry{TempID: "tmp-" + strconv.Itoa(c.seq), Content: content, Status: EntryPending}
	c.entries = append(c.entries, e)
	c.active = e
	c.draft = content
	c.state = Sending
	return e.TempID, nil
}

func (c *Composer) Succeeded(tempID string, m *model.Message) error {
	e, err := c.pending(tempID)
	if err != nil {
		return err
	}
	e.Status = EntrySent
	e.Message = m
	e.Err = nil
	c.active = nil
	c.draft = model.Content{}
	c.state = Idle
	return nil
}

// Failed marks the entry as failed. The draft keeps the text.
func (c *Composer) Failed(tempID string, err error) error {
	e, perr := c.pending(tempID)
	if perr != nil {
		return perr
	}
	e.Status = EntryFailed
	e.Err = err
	c.state = SendError
	return nil
}

// Retry resubmits the failed entry under its existing temporary id.
func (c *Composer) Retry() (string, error) {
	if c.state != SendError || c.active == nil {
		return "", ErrNothingToRetry
	}
	c.active.Status = EntryPending
	c.active.Err = nil
	c.state = Sending
	return c.active.TempID, nil
}

// Dismiss leaves the error state. The failed entry stays visible and the
// draft is kept so the user can edit and send again.
func (c *Composer) Dismiss() {
	if c.state != SendError {
		return
	}
	c.active = nil
	c.state = Idle
}

func (c *Composer) pending(tempID string) (*Entry, error) {
	if c.state != Sending || c.active == nil || c.active.TempID != tempID {
		return nil, ErrUnknownEntry
	}
	return c.active, nil
}
