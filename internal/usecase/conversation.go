package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pdf-chat/internal/domain"
)

type Asker interface {
	Ask(ctx context.Context, in AskInput) (AskOutput, error)
}

// Conversation is the in-memory chat history for one selected source. A user
// message is appended before the question is sent and stays there when the
// request fails upstream; the reply is appended only on success. A question
// rejected as invalid input is dropped again. History is never persisted.
type Conversation struct {
	asker Asker

	mu       sync.Mutex
	sourceID string
	messages []domain.ChatMessage
}

func NewConversation(asker Asker, sourceID string) (*Conversation, error) {
	if asker == nil {
		return nil, errors.New("usecase: asker must not be nil")
	}
	return &Conversation{asker: asker, sourceID: strings.TrimSpace(sourceID)}, nil
}

// Reset clears the history and points the conversation at sourceID.
func (c *Conversation) Reset(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sourceID = strings.TrimSpace(sourceID)
	c.messages = nil
}

func (c *Conversation) SourceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceID
}

// Messages returns a copy of the history, oldest first.
func (c *Conversation) Messages() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ChatMessage(nil), c.messages...)
}

// Send appends text as a user message and asks the document service.
func (c *Conversation) Send(ctx context.Context, text string) (AskOutput, error) {
	if strings.TrimSpace(text) == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sourceID == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "no_source_selected", nil)
	}

	c.messages = append(c.messages, domain.ChatMessage{Role: domain.RoleUser, Content: text})
	out, err := c.asker.Ask(ctx, AskInput{
		SourceID: c.sourceID,
		Messages: append([]domain.ChatMessage(nil), c.messages...),
	})
	if err != nil {
		if CodeOf(err) == ErrorInvalidInput {
			c.messages = c.messages[:len(c.messages)-1]
		}
		return AskOutput{}, err
	}
	c.messages = append(c.messages, domain.ChatMessage{Role: domain.RoleAssistant, Content: out.Content})
	return out, nil
}
