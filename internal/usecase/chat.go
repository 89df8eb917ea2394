package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"pdf-chat/internal/budget"
	"pdf-chat/internal/domain"
	"pdf-chat/internal/integrations/chatpdf"
	"pdf-chat/internal/render"
)

const defaultMaxQuestion = 2000

// Messenger is the part of the document service that answers questions.
type Messenger interface {
	SendMessage(ctx context.Context, sourceID string, messages []domain.ChatMessage, referenceSources bool) (chatpdf.Reply, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Limits bounds what is sent upstream per question.
type Limits struct {
	MaxMessages    int
	MaxTokens      int
	MaxQuestionLen int
}

type ChatService struct {
	messenger Messenger
	limits    Limits
	log       *slog.Logger
}

type AskInput struct {
	SourceID string
	Messages []domain.ChatMessage
}

type AskOutput struct {
	Content    string
	References []domain.PageReference
	HTML       string
	// Sent is the number of history messages actually transmitted.
	Sent int
}

func NewChatService(m Messenger, limits Limits, log *slog.Logger) (*ChatService, error) {
	if m == nil {
		return nil, errors.New("usecase: messenger must not be nil")
	}
	if limits.MaxMessages <= 0 {
		limits.MaxMessages = budget.DefaultMaxMessages
	}
	if limits.MaxTokens <= 0 {
		limits.MaxTokens = budget.DefaultMaxTokens
	}
	if limits.MaxQuestionLen <= 0 {
		limits.MaxQuestionLen = defaultMaxQuestion
	}
	if log == nil {
		log = slog.Default()
	}
	return &ChatService{messenger: m, limits: limits, log: log}, nil
}

// Ask sends the budgeted tail of in.Messages to the document service. The
// last message must be the user's question.
func (s *ChatService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	sourceID := strings.TrimSpace(in.SourceID)
	if sourceID == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_source_id", nil)
	}
	if len(in.Messages) == 0 {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_history", nil)
	}
	for _, m := range in.Messages {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			return AskOutput{}, newError(ErrorInvalidInput, "invalid_role", nil)
		}
	}
	question := in.Messages[len(in.Messages)-1]
	if question.Role != domain.RoleUser {
		return AskOutput{}, newError(ErrorInvalidInput, "last_message_not_user", nil)
	}
	if strings.TrimSpace(question.Content) == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if utf8.RuneCountInString(question.Content) > s.limits.MaxQuestionLen {
		return AskOutput{}, newError(ErrorInvalidInput, "question_too_long", nil)
	}

	toSend := budget.SelectMessagesToSend(in.Messages, s.limits.MaxMessages, s.limits.MaxTokens)
	if dropped := len(in.Messages) - len(toSend); dropped > 0 {
		s.log.Debug("history trimmed", "source_id", sourceID, "dropped", dropped, "sent", len(toSend))
	}

	reply, err := s.messenger.SendMessage(ctx, sourceID, toSend, true)
	if err != nil {
		return AskOutput{}, classifyUpstream(err, "chat")
	}

	return AskOutput{
		Content:    reply.Content,
		References: reply.References,
		HTML:       render.FormatResponse(reply.Content, reply.References),
		Sent:       len(toSend),
	}, nil
}

// classifyUpstream maps a document service failure onto an Error; op prefixes
// the reason.
func classifyUpstream(err error, op string) *Error {
	status, ok := upstreamStatusCode(err)
	switch {
	case ok && status == http.StatusTooManyRequests:
		return newError(ErrorRateLimited, op+"_rate_limited", err)
	case ok && status == http.StatusNotFound:
		return newError(ErrorNotFound, op+"_not_found", err)
	default:
		return newError(ErrorUpstream, op+"_error", err)
	}
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
