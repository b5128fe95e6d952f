package context

import "context"

// Provider retrieves the history a question is asked against.
type Provider interface {
	GetHistory(ctx context.Context, conversationID, userID int64) ([]Message, error)
}

// Compressor reduces a list of messages to fit within constraints.
type Compressor interface {
	Compress(messages []Message) []Message
}

// Assembler combines system prompt, history, and the current question into the
// message list handed to the model.
type Assembler interface {
	Assemble(system string, history []Message, question string) []Message
}
