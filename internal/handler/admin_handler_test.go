package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/eaglebank/bank-service/internal/command"
	"github.com/eaglebank/bank-service/shared/cqrs"
	"github.com/eaglebank/bank-service/shared/models"
	"github.com/gin-gonic/gin"
)

type mockAdminQuerier struct {
	reserveFn func() (*models.AccountView, error)
	getFn     func(cqrs.GetAccountViewQuery) (*models.AccountView, error)
	listFn    func() ([]models.AccountView, error)
}

func (m *mockAdminQuerier) Reserve(context.Context) (*models.AccountView, error) {
	if m.reserveFn != nil {
		return m.reserveFn()
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAdminQuerier) GetAccountView(_ context.Context, q cqrs.GetAccountViewQuery) (*models.AccountView, error) {
	if m.getFn != nil {
		return m.getFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockAdminQuerier) ListAccountViews(context.Context, cqrs.ListAccountViewsQuery) ([]models.AccountView, error) {
	if m.listFn != nil {
		return m.listFn()
	}
	return nil, fmt.Errorf("not configured")
}

func newAdminTestRouter(q AdminQuerier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAdminHandler(q)
	admin := r.Group("/admin")
	admin.GET("/reserve", h.GetReserve)
	admin.GET("/accounts", h.ListAccounts)
	admin.GET("/accounts/:username", h.GetAccount)
	return r
}

func TestAdminGetReserve(t *testing.T) {
	q := &mockAdminQuerier{reserveFn: func() (*models.AccountView, error) {
		return &models.AccountView{Username: "BANK", Balance: 2, Reserve: true}, nil
	}}
	w := doRequest(newAdminTestRouter(q), http.MethodGet, "/admin/reserve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view models.AccountView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !view.Reserve || view.Balance != 2 {
		t.Errorf("unexpected view %+v", view)
	}
}

func TestAdminListAccounts(t *testing.T) {
	q := &mockAdminQuerier{listFn: func() ([]models.AccountView, error) {
		return []models.AccountView{
			{Username: "alice", Balance: 48},
			{Username: "bob", Balance: 50},
			{Username: "BANK", Balance: 2, Reserve: true},
		}, nil
	}}
	w := doRequest(newAdminTestRouter(q), http.MethodGet, "/admin/accounts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ListAccountsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(resp.Accounts) != 3 || resp.Total != 100 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestAdminGetAccount(t *testing.T) {
	q := &mockAdminQuerier{getFn: func(q cqrs.GetAccountViewQuery) (*models.AccountView, error) {
		if q.Username != "alice" {
			return nil, command.ErrUnknownUser
		}
		return &models.AccountView{Username: "alice", Balance: 48}, nil
	}}
	router := newAdminTestRouter(q)

	tests := []struct {
		url  string
		want int
	}{
		{"/admin/accounts/alice", http.StatusOK},
		{"/admin/accounts/ghost", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			w := doRequest(router, http.MethodGet, tt.url, nil)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}
