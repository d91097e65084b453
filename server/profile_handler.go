package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"audiolib/logger"
	"audiolib/model"
	"audiolib/repository"
	"audiolib/storage"
)

type profileResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	User    *model.User `json:"user"`
}

// attachProfilePicture stores picture in user's namespace and records it.
// The previous picture is removed once the record points at the new one.
// It reports whether the user now carries the new picture.
func (h *APIHandler) attachProfilePicture(ctx context.Context, user *model.User, picture *upload) bool {
	ref, status, _ := h.putUpload(ctx, picture, user.ID)
	if status != 0 {
		return false
	}
	old := user.ProfilePicture
	user.ProfilePicture = ref
	if err := h.users.UpdateUser(ctx, user); err != nil {
		logger.Error("保存头像失败", logger.Int64("userId", user.ID), logger.ErrorField(err))
		user.ProfilePicture = old
		h.removeAssets(ctx, ref)
		return false
	}
	h.removeAssets(ctx, old)
	return true
}

func (h *APIHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	caller := IdentityFromContext(r.Context())
	user, err := h.users.GetUserByID(r.Context(), caller.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// a valid token for a deleted account
			writeError(w, http.StatusNotFound, "User not found")
			return nil, false
		}
		logger.Error("查询用户失败", logger.Int64("userId", caller.ID), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to load profile")
		return nil, false
	}
	return user, true
}

// GetProfileHandler returns the caller's own account.
func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Success: true, User: user})
}

// UpdateProfileHandler changes the caller's name and/or profile picture.
// Expected multipart or urlencoded fields, both optional:
// - name: at least 2 characters
// - profilePic: .jpg, .jpeg or .png image
func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	cleanup, status, msg := parseForm(w, r, h.cfg.MaxUploadBytes+(1<<20))
	defer cleanup()
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name != "" && len([]rune(name)) < 2 {
		writeError(w, http.StatusBadRequest, "Name must be at least 2 characters")
		return
	}

	f, fh, err := optionalFile(r, "profilePic")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile picture")
		return
	}
	var picture *upload
	if f != nil {
		defer f.Close()
		if picture, status, msg = h.checkUpload(storage.KindProfilePicture, f, fh); status != 0 {
			writeError(w, status, msg)
			return
		}
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	if name != "" && name != user.Name {
		user.Name = name
		if err := h.users.UpdateUser(r.Context(), user); err != nil {
			logger.Error("更新用户资料失败", logger.Int64("userId", user.ID), logger.ErrorField(err))
			writeError(w, http.StatusServiceUnavailable, "Failed to update profile")
			return
		}
	}
	if picture != nil && !h.attachProfilePicture(r.Context(), user, picture) {
		writeError(w, http.StatusServiceUnavailable, "Failed to store profile picture")
		return
	}

	logger.Info("用户资料已更新",
		logger.Int64("userId", user.ID),
		logger.Bool("picture", picture != nil))
	writeJSON(w, http.StatusOK, profileResponse{Success: true, Message: "Profile updated successfully", User: user})
}
