// Package chathistory turns a group timeline into the role-tagged context a
// bot sees when it is asked to respond.
package chathistory

import (
	"strings"

	"github.com/dalemusser/groupchat/internal/app/llm"
	"github.com/dalemusser/groupchat/internal/domain/models"
)

const (
	// FetchLimit is how many raw messages are read before filtering.
	FetchLimit = 30
	// WindowSize caps the number of turns kept after filtering.
	WindowSize = 20
)

// DefaultSystemPrompt is prepended to every bot completion.
const DefaultSystemPrompt = "You are a helpful AI assistant participating in a group chat. " +
	"You were mentioned by a user who wants your input. Respond helpfully and concisely. " +
	"Keep your responses focused and relevant to the conversation context."

// Eligible reports whether a message may appear in a bot's context.
// System notices, deleted messages and placeholders still being generated
// are excluded.
func Eligible(m models.GroupMessage) bool {
	if m.MessageType == models.MessageTypeSystem || m.SenderType == models.SenderTypeSystem {
		return false
	}
	if m.IsDeleted || m.IsGenerating {
		return false
	}
	return strings.TrimSpace(m.Text) != ""
}

// Build converts chronologically ordered messages into turns for the bot
// identified by botMemberID. The bot's own messages become assistant turns
// verbatim; everything else becomes a user turn prefixed with "[name]: ".
// Only the most recent max eligible turns are kept (max <= 0 keeps all).
func Build(msgs []models.GroupMessage, botMemberID string, max int) []llm.Message {
	turns := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if !Eligible(m) {
			continue
		}
		if m.SenderID == botMemberID {
			turns = append(turns, llm.Message{Role: llm.RoleAssistant, Content: m.Text})
			continue
		}
		turns = append(turns, llm.Message{Role: llm.RoleUser, Content: "[" + senderLabel(m) + "]: " + m.Text})
	}
	if max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	return turns
}

// WithSystem prepends a system turn.
func WithSystem(prompt string, turns []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(turns)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: prompt})
	return append(out, turns...)
}

func senderLabel(m models.GroupMessage) string {
	if name := strings.TrimSpace(m.SenderName); name != "" {
		return name
	}
	return m.SenderID
}
