package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/mail"
	"strings"

	"audiolib/core/auth"
	"audiolib/logger"
	"audiolib/model"
	"audiolib/repository"
	"audiolib/storage"
)

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    *model.User `json:"user"`
}

func (req *RegisterRequest) validate() string {
	if len(strings.TrimSpace(req.Name)) < 2 {
		return "Name must be at least 2 characters"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "Please provide a valid email"
	}
	if len(req.Password) < 6 {
		return "Password must be at least 6 characters"
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		return "Password must be at most 72 bytes"
	}
	return ""
}

// RegisterHandler creates a regular user account from a JSON body, or from
// a multipart form that may also carry a profilePic image. Roles cannot be
// chosen at registration; admins are created from the command line.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	var picture *upload
	if isMultipart(r) {
		cleanup, status, msg := parseForm(w, r, h.cfg.MaxUploadBytes+(1<<20))
		defer cleanup()
		if status != 0 {
			writeError(w, status, msg)
			return
		}
		req = RegisterRequest{Name: r.FormValue("name"), Email: r.FormValue("email"), Password: r.FormValue("password")}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	f, fh, err := optionalFile(r, "profilePic")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid profile picture")
		return
	}
	if f != nil {
		defer f.Close()
		var status int
		var msg string
		if picture, status, msg = h.checkUpload(storage.KindProfilePicture, f, fh); status != 0 {
			writeError(w, status, msg)
			return
		}
	}

	hash, err := auth.HashPassword(req.Password, h.cfg.BcryptCost)
	if err != nil {
		logger.Error("[Register] 密码加密失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := &model.User{Name: strings.TrimSpace(req.Name), Email: req.Email, PasswordHash: hash, Role: model.RoleUser}
	if _, err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			writeError(w, http.StatusBadRequest, "User already exists with this email")
			return
		}
		logger.Error("[Register] 创建用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// the picture needs the new user's namespace, so it is stored last; if
	// that fails the account stands without one and /api/profile can set it
	if picture != nil {
		h.attachProfilePicture(r.Context(), user, picture)
	}

	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		logger.Error("[Register] 生成Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("[Register] 注册成功", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusCreated, authResponse{Success: true, Message: "User registered successfully", Token: token, User: user})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// LoginHandler handles user login requests
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logger.Warn("[Login] 用户不存在", logger.String("email", req.Email))
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	ok, err := auth.CheckPasswordHash(req.Password, user.PasswordHash)
	if err != nil {
		// the stored hash is unusable: corrupt data, not a bad guess
		logger.Error("[Login] 密码哈希损坏", logger.Int64("userId", user.ID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !ok {
		logger.Warn("[Login] 密码验证失败", logger.Int64("userId", user.ID))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.Info("[Login] 登录成功", logger.Int64("userId", user.ID))
	writeJSON(w, http.StatusOK, authResponse{Success: true, Message: "Login successful", Token: token, User: user})
}
