package handlers

import (
	"net/http"

	"go-pos-ledger/internal/accounts"
	"go-pos-ledger/internal/models"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input")
		return
	}

	user, err := h.accounts.Authenticate(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	token, expires, err := h.tokens.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		h.fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires,
		"role":       user.Role,
		"username":   user.Username,
	})
}

// Register is only mounted when ALLOW_REGISTRATION is set. The first account
// becomes the admin; later ones are cashiers.
func (h *Handler) Register(c *gin.Context) {
	var input LoginRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid input")
		return
	}

	n, err := h.accounts.CountUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	role := models.RoleCashier
	if n == 0 {
		role = models.RoleAdmin
	}

	user, err := h.accounts.CreateUser(c.Request.Context(), accounts.NewUser{
		Username: input.Username,
		Password: input.Password,
		Role:     role,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, user)
}
