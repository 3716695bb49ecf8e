package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/KishorKumarParoi/KTube-backend/internal/domain/model"
	authsvc "github.com/KishorKumarParoi/KTube-backend/internal/services/auth"
	"github.com/KishorKumarParoi/KTube-backend/internal/transport/http/dto"
	httperrors "github.com/KishorKumarParoi/KTube-backend/internal/transport/http/errors"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
)

type CookieConfig struct {
	Secure bool
}

type AuthHandler struct {
	service *authsvc.Service
	cookies CookieConfig
}

func NewAuthHandler(service *authsvc.Service, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{service: service, cookies: cookies}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	var req dto.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	login := req.Username
	if login == "" {
		login = req.Email
	}
	if login == "" || req.Password == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "username or email and password are required")
		return
	}

	res, err := h.service.Login(r.Context(), login, req.Password)
	if err != nil {
		handleAuthError(w, err)
		return
	}

	h.setAuthCookies(w, res.Tokens)
	httperrors.Write(w, http.StatusOK, tokensResponse(res))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	presented := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req dto.RefreshRequest
		if err := decodeJSON(r, &req); err == nil {
			presented = req.RefreshToken
		}
	}

	res, err := h.service.Refresh(r.Context(), presented)
	if err != nil {
		handleAuthError(w, err)
		return
	}

	h.setAuthCookies(w, res.Tokens)
	httperrors.Write(w, http.StatusOK, tokensResponse(res))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), identity.UserID); err != nil {
		handleAuthError(w, err)
		return
	}

	h.clearAuthCookies(w)
	httperrors.Write(w, http.StatusOK, dto.LogoutResponse{OK: true})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	var req dto.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	err := h.service.ChangePassword(r.Context(), identity.UserID, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		handleAuthError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ChangePasswordResponse{OK: true})
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, pair authsvc.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     "/",
		Expires:  pair.RefreshExpires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func tokensResponse(res authsvc.LoginResult) dto.AuthTokensResponse {
	return dto.AuthTokensResponse{
		User:         toUserResponse(res.User),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresInSec: maxInt64(0, int64(time.Until(res.Tokens.AccessExpires).Seconds())),
	}
}

func toUserResponse(user model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.Avatar.URL,
		CoverImageURL: user.CoverImage.URL,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func handleAuthError(w http.ResponseWriter, err error) {
	var throttled *authsvc.TooManyAttemptsError
	switch {
	case errors.As(err, &throttled):
		w.Header().Set("Retry-After", strconv.FormatInt(throttled.RetryAfterSec, 10))
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
			Code:          "TOO_MANY_ATTEMPTS",
			Message:       "too many login attempts",
			RetryAfterSec: throttled.RetryAfterSec,
		})
	case errors.Is(err, authsvc.ErrInvalidInput):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, authsvc.ErrInvalidCredentials):
		writeBadRequest(w, "INVALID_CREDENTIALS", "invalid credentials")
	case errors.Is(err, authsvc.ErrNotFound):
		writeNotFound(w, "ACCOUNT_NOT_FOUND", "account not found")
	case errors.Is(err, authsvc.ErrUnauthorized):
		writeUnauthorized(w, "UNAUTHORIZED", "authentication failed")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: code, Message: message})
}

func writeConflict(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusConflict, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
