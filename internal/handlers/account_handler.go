package handlers

import (
	"net/http"

	"go-pos-ledger/internal/accounts"
	"go-pos-ledger/internal/middleware"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.accounts.ListUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

func (h *Handler) CreateUser(c *gin.Context) {
	var in accounts.NewUser
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "username and password are required")
		return
	}
	user, err := h.accounts.CreateUser(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, user)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if id == middleware.UserID(c) {
		badRequest(c, "You cannot delete your own account")
		return
	}
	if err := h.accounts.DeleteUser(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (h *Handler) ListEmployees(c *gin.Context) {
	list, err := h.accounts.ListEmployees(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

func (h *Handler) CreateEmployee(c *gin.Context) {
	var in accounts.EmployeeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "name is required")
		return
	}
	emp, err := h.accounts.CreateEmployee(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, emp)
}

func (h *Handler) UpdateEmployee(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var p accounts.EmployeePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, "Invalid input")
		return
	}
	emp, err := h.accounts.UpdateEmployee(c.Request.Context(), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, emp)
}

func (h *Handler) DeleteEmployee(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.accounts.DeleteEmployee(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}
