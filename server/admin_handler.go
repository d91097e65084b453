package server

import (
	"context"
	"net/http"
	"time"

	"audiolib/logger"
	"audiolib/model"
)

type statsResponse struct {
	Success bool                `json:"success"`
	Stats   *model.LibraryStats `json:"stats"`
}

// AdminStatsHandler returns library totals, genre counts and the most played tracks.
func (h *APIHandler) AdminStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Get(r.Context())
	if err != nil {
		logger.Error("获取统计数据失败", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Success: true, Stats: stats})
}

// AdminTracksHandler lists every track, private ones included.
func (h *APIHandler) AdminTracksHandler(w http.ResponseWriter, r *http.Request) {
	opts, msg := parseListOptions(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	tracks, total, err := h.tracks.ListAllTracks(r.Context(), opts)
	if err != nil {
		logger.Error("获取全部音频失败", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to list audio")
		return
	}
	writeTrackList(w, tracks, total, opts)
}

type userListResponse struct {
	Success    bool          `json:"success"`
	Users      []*model.User `json:"users"`
	Pagination pagination    `json:"pagination"`
}

// AdminUsersHandler lists registered users, newest first.
func (h *APIHandler) AdminUsersHandler(w http.ResponseWriter, r *http.Request) {
	opts, msg := parseListOptions(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	users, total, err := h.users.ListUsers(r.Context(), opts)
	if err != nil {
		logger.Error("获取用户列表失败", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, userListResponse{
		Success:    true,
		Users:      users,
		Pagination: newPagination(total, opts),
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler runs every registered check and answers 503 if any fails.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logger.Warn("健康检查失败", logger.String("check", name), logger.ErrorField(err))
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
