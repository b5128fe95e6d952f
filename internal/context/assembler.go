package context

import "strings"

// Roles the model understands.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AlternatingAssembler builds the message list for SQL synthesis. The model
// endpoint rejects two consecutive messages with the same role, so any message
// repeating the role of the previously accepted one is dropped.
type AlternatingAssembler struct{}

// Assemble returns system + filtered history + question. The question is
// omitted when the last accepted message is already a user turn. Neither
// history nor its elements are modified.
func (a *AlternatingAssembler) Assemble(system string, history []Message, question string) []Message {
	messages := make([]Message, 0, 1+len(history)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: system})

	lastRole := RoleSystem
	for _, m := range history {
		if m.Role == lastRole {
			continue
		}
		messages = append(messages, m)
		lastRole = m.Role
	}

	if lastRole != RoleUser {
		messages = append(messages, Message{Role: RoleUser, Content: question})
	}
	return messages
}

// NormalizeRole maps a stored conversation role onto a role the model accepts.
// Stored sql turns are shown to the model as its own earlier assistant turns.
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	switch r {
	case "sql", "model":
		return RoleAssistant
	}
	return r
}
