package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tunehub/music-api/internal/core/domain"
	"github.com/tunehub/music-api/internal/core/ports"
)

type AccountHandler struct {
	accounts ports.AccountReader
}

func NewAccountHandler(accounts ports.AccountReader) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// Me returns the authenticated caller.
//
// @Summary      Current account
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.AccountView
// @Failure      401  {object}  errorResponse
// @Router       /users/me [get]
func (h *AccountHandler) Me(c echo.Context) error {
	acct, err := ctxAccount(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acct.View())
}

// GetAccount returns any account by id. Admin only.
//
// @Summary      Get account by id
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Account ID"
// @Success      200  {object}  domain.AccountView
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /admin/accounts/{id} [get]
func (h *AccountHandler) GetAccount(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if !primitive.IsValidObjectID(id) {
		return domain.NewValidationError("id must be a 24-character hex string")
	}

	acct, err := h.accounts.FindByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acct.View())
}
