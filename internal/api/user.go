package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stupiduntilnot/querygate/internal/store"
)

// UserController handles the user directory.
type UserController struct {
	users Directory
}

func NewUserController(users Directory) *UserController {
	return &UserController{users: users}
}

type userView struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

func toUserView(u store.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, JoinedAt: u.JoinedAt}
}

// CreateUser handles POST /api/users
func (c *UserController) CreateUser(ctx *gin.Context) {
	type Request struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	}
	var req Request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != "" && req.Role != "user" && req.Role != "admin" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or admin"})
		return
	}

	u, err := c.users.CreateUser(ctx.Request.Context(), req.Username, req.Email, req.Role)
	if err != nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, toUserView(u))
}

// ListUsers handles GET /api/users
func (c *UserController) ListUsers(ctx *gin.Context) {
	users, err := c.users.ListUsers(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, toUserView(u))
	}
	ctx.JSON(http.StatusOK, out)
}
