package handler

import (
	"context"
	"net/http"

	"github.com/eaglebank/bank-service/shared/cqrs"
	"github.com/eaglebank/bank-service/shared/middleware"
	"github.com/eaglebank/bank-service/shared/models"
	"github.com/gin-gonic/gin"
)

// AdminQuerier defines the read-side operations used by AdminHandler.
type AdminQuerier interface {
	Reserve(context.Context) (*models.AccountView, error)
	GetAccountView(context.Context, cqrs.GetAccountViewQuery) (*models.AccountView, error)
	ListAccountViews(context.Context, cqrs.ListAccountViewsQuery) ([]models.AccountView, error)
}

type AdminHandler struct {
	queries AdminQuerier
}

type ListAccountsResponse struct {
	Accounts []models.AccountView `json:"accounts"`
	Total    int64                `json:"total"`
}

func NewAdminHandler(queries AdminQuerier) *AdminHandler {
	return &AdminHandler{queries: queries}
}

func (h *AdminHandler) GetReserve(c *gin.Context) {
	view, err := h.queries.Reserve(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *AdminHandler) ListAccounts(c *gin.Context) {
	views, err := h.queries.ListAccountViews(c.Request.Context(), cqrs.ListAccountViewsQuery{})
	if err != nil {
		h.respondError(c, err)
		return
	}
	var total int64
	for _, v := range views {
		total += v.Balance
	}
	if views == nil {
		views = []models.AccountView{}
	}
	c.JSON(http.StatusOK, ListAccountsResponse{Accounts: views, Total: total})
}

func (h *AdminHandler) GetAccount(c *gin.Context) {
	view, err := h.queries.GetAccountView(c.Request.Context(), cqrs.GetAccountViewQuery{
		Username: c.Param("username"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *AdminHandler) respondError(c *gin.Context, err error) {
	code, status, message := classify(err, StatusNotEnoughToTransfer)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	middleware.RespondWithError(c, code, status, message)
}
