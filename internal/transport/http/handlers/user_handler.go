package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/KishorKumarParoi/KTube-backend/internal/services/auth"
	mediasvc "github.com/KishorKumarParoi/KTube-backend/internal/services/media"
	userssvc "github.com/KishorKumarParoi/KTube-backend/internal/services/users"
	"github.com/KishorKumarParoi/KTube-backend/internal/transport/http/dto"
	httperrors "github.com/KishorKumarParoi/KTube-backend/internal/transport/http/errors"
)

const maxMultipartMemory = 8 << 20

type UserHandler struct {
	users *userssvc.Service
	media *mediasvc.Service
}

func NewUserHandler(users *userssvc.Service, media *mediasvc.Service) *UserHandler {
	return &UserHandler{users: users, media: media}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if h.users == nil {
		writeInternal(w, "USER_SERVICE_UNAVAILABLE", "user service is unavailable")
		return
	}

	var req dto.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	user, err := h.users.Register(r.Context(), userssvc.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		handleUserError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, toUserResponse(user))
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.users == nil {
		writeInternal(w, "USER_SERVICE_UNAVAILABLE", "user service is unavailable")
		return
	}

	user, err := h.users.FindByID(r.Context(), identity.UserID)
	if err != nil {
		handleUserError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.users == nil {
		writeInternal(w, "USER_SERVICE_UNAVAILABLE", "user service is unavailable")
		return
	}

	var req dto.UpdateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	user, err := h.users.UpdateAccount(r.Context(), identity.UserID, userssvc.AccountPatch{
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		handleUserError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, "avatar")
}

func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.uploadImage(w, r, "coverImage")
}

func (h *UserHandler) uploadImage(w http.ResponseWriter, r *http.Request, field string) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.media == nil {
		writeInternal(w, "MEDIA_SERVICE_UNAVAILABLE", "media service is unavailable")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "multipart form expected")
		return
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "an image file is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	contentType := header.Header.Get("Content-Type")

	switch field {
	case "avatar":
		img, err := h.media.UploadAvatar(r.Context(), identity.UserID, header.Filename, contentType, file, header.Size)
		if err != nil {
			handleMediaError(w, err)
			return
		}
		httperrors.Write(w, http.StatusOK, dto.ImageResponse{URL: img.URL})
	case "coverImage":
		img, err := h.media.UploadCoverImage(r.Context(), identity.UserID, header.Filename, contentType, file, header.Size)
		if err != nil {
			handleMediaError(w, err)
			return
		}
		httperrors.Write(w, http.StatusOK, dto.ImageResponse{URL: img.URL})
	}
}

func handleUserError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, userssvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, userssvc.ErrUserExists):
		writeConflict(w, "USER_EXISTS", "user already exists")
	case errors.Is(err, userssvc.ErrUserNotFound):
		writeNotFound(w, "ACCOUNT_NOT_FOUND", "account not found")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}

func handleMediaError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mediasvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid image upload")
	default:
		writeInternal(w, "INTERNAL_ERROR", "failed to store image")
	}
}
