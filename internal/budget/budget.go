// Package budget decides which part of a conversation is sent upstream.
//
// The document-chat service rejects long histories, so every request carries
// at most a bounded suffix of the conversation. Token counts here are an
// approximation (about four characters per token), not a tokenizer.
package budget

import (
	"unicode/utf8"

	"pdf-chat/internal/domain"
)

const (
	DefaultMaxMessages = 6
	DefaultMaxTokens   = 2500

	charsPerToken = 4
)

// EstimateTokens approximates the token count of text as ceil(chars/4).
// Characters are runes, so a non-BMP rune such as an emoji counts once where
// a UTF-16 length would count it twice.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Select trims history with the default limits.
func Select(history []domain.ChatMessage) []domain.ChatMessage {
	return SelectMessagesToSend(history, DefaultMaxMessages, DefaultMaxTokens)
}

// SelectMessagesToSend returns the longest contiguous suffix of history that
// holds at most maxMessages messages and maxTokens estimated tokens. The last
// message is always kept, even when it alone is over budget. Non-positive
// limits fall back to the defaults.
func SelectMessagesToSend(history []domain.ChatMessage, maxMessages, maxTokens int) []domain.ChatMessage {
	if len(history) == 0 {
		return nil
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	if len(history) <= maxMessages && totalTokens(history) <= maxTokens {
		return history
	}

	last := len(history) - 1
	start := last
	used := EstimateTokens(history[last].Content)
	for i := last - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content)
		if last-i+1 > maxMessages || used+cost > maxTokens {
			break
		}
		used += cost
		start = i
	}

	out := make([]domain.ChatMessage, len(history)-start)
	copy(out, history[start:])
	return out
}

func totalTokens(msgs []domain.ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
