// Package api exposes the agent over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stupiduntilnot/querygate/internal/agent"
	"github.com/stupiduntilnot/querygate/internal/store"
)

// Asker is the agent surface the handlers call.
type Asker interface {
	Ask(ctx context.Context, req agent.AskRequest) (agent.Exchange, error)
	History(ctx context.Context, userID int64) ([]agent.HistoryEntry, error)
	Conversation(ctx context.Context, id int64) (store.Conversation, []store.Message, error)
}

// Directory is the user directory surface the handlers call.
type Directory interface {
	CreateUser(ctx context.Context, username, email, role string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(a Asker, users Directory, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	r := gin.New()
	r.Use(RequestID(), AccessLog(logger), Recovery(logger))

	queryCtrl := NewQueryController(a)
	userCtrl := NewUserController(users)
	convoCtrl := NewConversationController(a)

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/queries/ask", queryCtrl.Ask)
	api.GET("/queries/history", queryCtrl.History)
	api.GET("/users", userCtrl.ListUsers)
	api.POST("/users", userCtrl.CreateUser)
	api.GET("/conversations/:id/messages", convoCtrl.GetMessages)
	return r
}
