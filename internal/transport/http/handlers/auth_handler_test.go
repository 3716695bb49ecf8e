package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KishorKumarParoi/KTube-backend/internal/domain/model"
	authsvc "github.com/KishorKumarParoi/KTube-backend/internal/services/auth"
	"github.com/KishorKumarParoi/KTube-backend/internal/transport/http/dto"
)

type handlerRefreshStore struct {
	mu    sync.Mutex
	slots map[int64]string
}

func newHandlerRefreshStore() *handlerRefreshStore {
	return &handlerRefreshStore{slots: make(map[int64]string)}
}

func (s *handlerRefreshStore) GetRefreshToken(_ context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[userID], nil
}

func (s *handlerRefreshStore) SetRefreshToken(_ context.Context, userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[userID] = token
	return nil
}

func (s *handlerRefreshStore) ReplaceRefreshToken(_ context.Context, userID int64, old, new string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[userID] != old || old == "" {
		return authsvc.ErrRefreshMismatch
	}
	s.slots[userID] = new
	return nil
}

func (s *handlerRefreshStore) ClearRefreshToken(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[userID] = ""
	return nil
}

type handlerCredentials struct {
	user     model.User
	password string
}

func (s *handlerCredentials) FindByLogin(_ context.Context, login string) (model.User, error) {
	if login == s.user.Username || login == s.user.Email {
		return s.user, nil
	}
	return model.User{}, authsvc.ErrNotFound
}

func (s *handlerCredentials) FindByID(_ context.Context, userID int64) (model.User, error) {
	if userID == s.user.ID {
		return s.user, nil
	}
	return model.User{}, authsvc.ErrNotFound
}

func (s *handlerCredentials) VerifyPassword(_ context.Context, userID int64, password string) error {
	if userID != s.user.ID || password != s.password {
		return authsvc.ErrInvalidCredentials
	}
	return nil
}

func (s *handlerCredentials) UpdatePassword(_ context.Context, userID int64, newPassword string) error {
	if userID != s.user.ID {
		return authsvc.ErrNotFound
	}
	s.password = newPassword
	return nil
}

func newAuthTestHandler(t *testing.T) (*AuthHandler, *handlerRefreshStore) {
	t.Helper()
	tokens := authsvc.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, time.Hour)
	refreshStore := newHandlerRefreshStore()
	creds := &handlerCredentials{
		user: model.User{
			ID:       42,
			Username: "alice",
			Email:    "alice@example.com",
			FullName: "Alice Liddell",
		},
		password: "wonderland1",
	}
	service := authsvc.NewService(tokens, refreshStore, creds)
	return NewAuthHandler(service, CookieConfig{Secure: false}), refreshStore
}

func doLogin(t *testing.T, handler *AuthHandler) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"username":"alice","password":"wonderland1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)
	return rr
}

func cookieByName(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	res := rr.Result()
	defer res.Body.Close()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLoginSetsCookiesAndReturnsTokens(t *testing.T) {
	handler, store := newAuthTestHandler(t)

	rr := doLogin(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var payload dto.AuthTokensResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		t.Fatalf("tokens missing in response body")
	}
	if payload.User.Username != "alice" {
		t.Fatalf("unexpected user in response: %q", payload.User.Username)
	}
	if payload.ExpiresInSec <= 0 {
		t.Fatalf("expires_in_sec must be positive, got %d", payload.ExpiresInSec)
	}

	access := cookieByName(t, rr, "access_token")
	refresh := cookieByName(t, rr, "refresh_token")
	if access == nil || refresh == nil {
		t.Fatalf("auth cookies missing")
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatalf("auth cookies must be http-only")
	}
	if access.Value != payload.AccessToken || refresh.Value != payload.RefreshToken {
		t.Fatalf("cookie values do not match response body")
	}

	stored, err := store.GetRefreshToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("get refresh token: %v", err)
	}
	if stored != payload.RefreshToken {
		t.Fatalf("stored refresh token does not match issued token")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	handler, _ := newAuthTestHandler(t)

	body := `{"username":"alice","password":"nope"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rr.Body.String(), "INVALID_CREDENTIALS") {
		t.Fatalf("expected INVALID_CREDENTIALS code, got %s", rr.Body.String())
	}
}

func TestLoginRejectsUnknownAccount(t *testing.T) {
	handler, _ := newAuthTestHandler(t)

	body := `{"username":"nobody","password":"whatever1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRefreshRotatesTokenFromCookie(t *testing.T) {
	handler, store := newAuthTestHandler(t)

	loginRR := doLogin(t, handler)
	refreshCookie := cookieByName(t, loginRR, "refresh_token")
	if refreshCookie == nil {
		t.Fatalf("refresh cookie missing after login")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(refreshCookie)
	rr := httptest.NewRecorder()
	handler.Refresh(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var payload dto.AuthTokensResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.RefreshToken == refreshCookie.Value {
		t.Fatalf("refresh must rotate the refresh token")
	}

	stored, err := store.GetRefreshToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("get refresh token: %v", err)
	}
	if stored != payload.RefreshToken {
		t.Fatalf("slot must hold the rotated token")
	}

	// The first token is now superseded.
	replayReq := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	replayReq.AddCookie(refreshCookie)
	replayRR := httptest.NewRecorder()
	handler.Refresh(replayRR, replayReq)

	if replayRR.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh token must be rejected: got %d", replayRR.Code)
	}
}

func TestRefreshAcceptsBodyToken(t *testing.T) {
	handler, _ := newAuthTestHandler(t)

	loginRR := doLogin(t, handler)
	var loginPayload dto.AuthTokensResponse
	if err := json.Unmarshal(loginRR.Body.Bytes(), &loginPayload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	body, err := json.Marshal(dto.RefreshRequest{RefreshToken: loginPayload.RefreshToken})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()
	handler.Refresh(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestRefreshWithoutTokenIsUnauthorized(t *testing.T) {
	handler, _ := newAuthTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	rr := httptest.NewRecorder()
	handler.Refresh(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogoutClearsCookiesAndSlot(t *testing.T) {
	handler, store := newAuthTestHandler(t)

	loginRR := doLogin(t, handler)
	var loginPayload dto.AuthTokensResponse
	if err := json.Unmarshal(loginRR.Body.Bytes(), &loginPayload); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	req = req.WithContext(authsvc.WithIdentity(req.Context(), authsvc.Identity{
		UserID:   42,
		Username: "alice",
	}))
	rr := httptest.NewRecorder()
	handler.Logout(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	access := cookieByName(t, rr, "access_token")
	if access == nil || access.MaxAge != -1 {
		t.Fatalf("access cookie must be expired on logout")
	}
	refresh := cookieByName(t, rr, "refresh_token")
	if refresh == nil || refresh.MaxAge != -1 {
		t.Fatalf("refresh cookie must be expired on logout")
	}

	stored, err := store.GetRefreshToken(context.Background(), 42)
	if err != nil {
		t.Fatalf("get refresh token: %v", err)
	}
	if stored != "" {
		t.Fatalf("refresh slot must be cleared on logout")
	}

	// The issued refresh token no longer works.
	body, err := json.Marshal(dto.RefreshRequest{RefreshToken: loginPayload.RefreshToken})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	refreshReq := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", strings.NewReader(string(body)))
	refreshRR := httptest.NewRecorder()
	handler.Refresh(refreshRR, refreshReq)

	if refreshRR.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout must be rejected: got %d", refreshRR.Code)
	}
}

func TestChangePasswordValidatesConfirmation(t *testing.T) {
	handler, _ := newAuthTestHandler(t)

	body := `{"old_password":"wonderland1","new_password":"looking-glass2","confirm_password":"mismatch"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/change-password", strings.NewReader(body))
	req = req.WithContext(authsvc.WithIdentity(req.Context(), authsvc.Identity{
		UserID:   42,
		Username: "alice",
	}))
	rr := httptest.NewRecorder()
	handler.ChangePassword(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestChangePasswordRotatesCredential(t *testing.T) {
	handler, _ := newAuthTestHandler(t)

	body := `{"old_password":"wonderland1","new_password":"looking-glass2","confirm_password":"looking-glass2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/change-password", strings.NewReader(body))
	req = req.WithContext(authsvc.WithIdentity(req.Context(), authsvc.Identity{
		UserID:   42,
		Username: "alice",
	}))
	rr := httptest.NewRecorder()
	handler.ChangePassword(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d, body %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	// Old password no longer logs in, the new one does.
	oldReq := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(`{"username":"alice","password":"wonderland1"}`))
	oldRR := httptest.NewRecorder()
	handler.Login(oldRR, oldReq)
	if oldRR.Code != http.StatusBadRequest {
		t.Fatalf("old password must be rejected after change: got %d", oldRR.Code)
	}

	newReq := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(`{"username":"alice","password":"looking-glass2"}`))
	newRR := httptest.NewRecorder()
	handler.Login(newRR, newReq)
	if newRR.Code != http.StatusOK {
		t.Fatalf("new password must log in after change: got %d", newRR.Code)
	}
}
