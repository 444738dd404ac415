package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
)

const inboxSize = 8

var errNoInbox = errors.New("no open inbox for chat")

// Inbox routes incoming messages to the session waiting on that chat. It
// implements domain.Prompter.
type Inbox struct {
	mu    sync.Mutex
	chats map[int64]chan domain.Message
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{chats: make(map[int64]chan domain.Message)}
}

// Open starts buffering messages for chatID.
func (in *Inbox) Open(chatID int64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.chats[chatID]; !ok {
		in.chats[chatID] = make(chan domain.Message, inboxSize)
	}
}

// Close stops buffering for chatID and drops pending messages.
func (in *Inbox) Close(chatID int64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.chats, chatID)
}

// Deliver hands msg to the chat's session. It reports false when no session
// listens or the buffer is full.
func (in *Inbox) Deliver(msg domain.Message) bool {
	in.mu.Lock()
	ch, ok := in.chats[msg.ChatID]
	in.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

// Await returns the next message of chatID or domain.ErrWizardTimeout.
func (in *Inbox) Await(ctx context.Context, chatID int64, timeout time.Duration) (domain.Message, error) {
	in.mu.Lock()
	ch, ok := in.chats[chatID]
	in.mu.Unlock()
	if !ok {
		return domain.Message{}, errNoInbox
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case <-t.C:
		return domain.Message{}, domain.ErrWizardTimeout
	case msg := <-ch:
		return msg, nil
	}
}
