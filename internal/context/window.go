package context

// WindowCompressor bounds history to the newest MaxMessages entries. A window
// that would open on a non-user turn is advanced to the next user turn so the
// model never sees an answer without its question. MaxMessages <= 0 keeps
// everything.
type WindowCompressor struct {
	MaxMessages int
}

// Compress returns a suffix of messages; the input slice is not modified.
func (c *WindowCompressor) Compress(messages []Message) []Message {
	if c.MaxMessages <= 0 || len(messages) <= c.MaxMessages {
		return messages
	}
	window := messages[len(messages)-c.MaxMessages:]
	for i, m := range window {
		if m.Role == RoleUser {
			return window[i:]
		}
	}
	return nil
}
