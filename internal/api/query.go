package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/stupiduntilnot/querygate/internal/agent"
)

// QueryController handles question answering and the flattened history.
type QueryController struct {
	agent Asker
}

func NewQueryController(a Asker) *QueryController {
	return &QueryController{agent: a}
}

type askRequest struct {
	UserID         int64  `form:"userId" json:"userId"`
	Question       string `form:"question" json:"question"`
	ConversationID *int64 `form:"conversationId" json:"conversationId"`
}

// Ask handles POST /api/queries/ask. Parameters come from the query string,
// a form body or a JSON body.
func (c *QueryController) Ask(ctx *gin.Context) {
	var req askRequest
	var err error
	if ctx.ContentType() == binding.MIMEJSON {
		err = ctx.ShouldBindJSON(&req)
	} else {
		err = ctx.ShouldBind(&req)
	}
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ex, err := c.agent.Ask(ctx.Request.Context(), agent.AskRequest{
		UserID:         req.UserID,
		Question:       req.Question,
		ConversationID: req.ConversationID,
	})
	switch {
	case errors.Is(err, agent.ErrUserNotFound), errors.Is(err, agent.ErrEmptyQuestion):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, agent.ErrConversationNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, ex)
}

// History handles GET /api/queries/history?userId=.
func (c *QueryController) History(ctx *gin.Context) {
	userID, err := strconv.ParseInt(ctx.Query("userId"), 10, 64)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid userId"})
		return
	}
	entries, err := c.agent.History(ctx.Request.Context(), userID)
	if errors.Is(err, agent.ErrUserNotFound) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, entries)
}
