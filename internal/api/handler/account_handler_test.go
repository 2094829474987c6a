package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tunehub/music-api/internal/core/domain"
)

type stubAccountReader struct {
	accounts map[string]*domain.Account
}

func (s *stubAccountReader) FindByID(_ context.Context, id string) (*domain.Account, error) {
	acct, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return acct, nil
}

func TestAccountHandler_Me(t *testing.T) {
	e := newTestEcho()
	handler := NewAccountHandler(&stubAccountReader{})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/users/me", nil), rec)
	c.Set("account", &domain.Account{ID: "a1", Username: "alice", Email: "alice@example.com", Role: domain.RoleUser, PasswordHash: "hash"})

	if err := handler.Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["id"] != "a1" || resp["username"] != "alice" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if _, ok := resp["password_hash"]; ok {
		t.Fatalf("hash leaked: %+v", resp)
	}
}

func TestAccountHandler_GetAccount(t *testing.T) {
	const id = "65a1f0c2e4b0a1b2c3d4e5f6"
	reader := &stubAccountReader{accounts: map[string]*domain.Account{
		id: {ID: id, Username: "bob", Role: domain.RoleArtist},
	}}

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "found", id: id},
		{name: "malformed id", id: "not-an-id", wantErr: domain.ErrValidation},
		{name: "missing", id: "65a1f0c2e4b0a1b2c3d4e5f7", wantErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEcho()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)

			err := NewAccountHandler(reader).GetAccount(c)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
		})
	}
}
