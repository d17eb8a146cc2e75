package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/service"
)

// multipartOverhead is the slack allowed on top of the avatar limit for
// multipart boundaries and part headers.
const multipartOverhead = 64 << 10

// UserHandler serves the account endpoints under /users.
type UserHandler struct {
	auth     *service.AuthService
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewUserHandler(authSvc *service.AuthService, profiles *service.ProfileService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		auth:     authSvc,
		profiles: profiles,
		logger:   logger,
	}
}

type signUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignUp creates an account.
//
// HTTP: POST /users → 201 {"user": {...}, "token": "..."}
func (h *UserHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.auth.SignUp(r.Context(), service.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Age:      req.Age,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleLogin opens a new session.
//
// HTTP: POST /users/login → 200 {"user": {...}, "token": "..."}
//
// Bad credentials answer 400 rather than 401: the client did not present a
// session, it sent a bad request.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperror.ErrUnauthorized) {
			writeErrorStatus(w, r, http.StatusBadRequest, "unauthorized", err)
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout revokes the token used for this request.
//
// HTTP: POST /users/logout → 200
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	token, _ := auth.TokenFromContext(r.Context())

	if err := h.auth.Logout(r.Context(), user, token); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleLogoutAll revokes every session of the caller.
//
// HTTP: POST /users/logoutAll → 200
func (h *UserHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.auth.LogoutAll(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleMe returns the caller's profile.
//
// HTTP: GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateMe applies an allow-listed profile patch.
//
// HTTP: PATCH /users/me with any of {"name", "age", "email", "password"}
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, r, err)
		return
	}
	patch, err := service.ParseProfilePatch(raw)
	if err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.profiles.UpdateProfile(r.Context(), user, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDeleteMe deletes the caller's account and all their tasks.
//
// HTTP: DELETE /users/me → 200 with the deleted profile
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	deleted, err := h.profiles.DeleteAccount(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

// HandleUploadAvatar stores the caller's profile picture.
//
// HTTP: POST /users/me/avatar, multipart/form-data with the file in field
// "avatar" → 200
func (h *UserHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	limit := h.profiles.MaxAvatarBytes()

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	file, header, err := r.FormFile("avatar")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, apperror.ValidationFailed("avatar", "File too large"))
			return
		}
		writeError(w, r, apperror.ValidationFailed("avatar", "Please upload an image in the \"avatar\" field"))
		return
	}
	defer file.Close()

	if err := h.profiles.CheckAvatar(header.Filename, header.Size); err != nil {
		writeError(w, r, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, r, apperror.Internal("Unable to read upload", err))
		return
	}

	if err := h.profiles.SetAvatar(r.Context(), user, header.Filename, data); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleDeleteAvatar removes the caller's profile picture.
//
// HTTP: DELETE /users/me/avatar → 200
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	if err := h.profiles.ClearAvatar(r.Context(), user); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleGetAvatar serves any user's profile picture. No authentication.
//
// HTTP: GET /users/{id}/avatar → 200 image/png
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := h.profiles.GetAvatar(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write avatar", slog.String("error", err.Error()))
	}
}
