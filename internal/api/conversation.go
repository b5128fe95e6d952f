package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stupiduntilnot/querygate/internal/agent"
)

// ConversationController replays conversation logs.
type ConversationController struct {
	agent Asker
}

func NewConversationController(a Asker) *ConversationController {
	return &ConversationController{agent: a}
}

type messageView struct {
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	WrittenAt time.Time `json:"writtenAt"`
}

// GetMessages handles GET /api/conversations/:id/messages
func (c *ConversationController) GetMessages(ctx *gin.Context) {
	convoID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation ID"})
		return
	}

	conv, msgs, err := c.agent.Conversation(ctx.Request.Context(), convoID)
	if errors.Is(err, agent.ErrConversationNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{Seq: m.Seq, Role: m.Role, Content: m.Content, WrittenAt: m.WrittenAt})
	}
	ctx.JSON(http.StatusOK, gin.H{
		"conversationId": conv.ID,
		"userId":         conv.UserID,
		"title":          conv.Title,
		"messages":       out,
	})
}
