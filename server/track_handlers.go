package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"audiolib/core/access"
	"audiolib/logger"
	"audiolib/metrics"
	"audiolib/model"
	"audiolib/repository"
	"audiolib/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
)

var errUnsupportedMedia = errors.New("file content does not match its type")

// trackView is a track as returned to API clients.
type trackView struct {
	*model.Track
	StreamURL string `json:"streamUrl"`
}

func newTrackView(t *model.Track) trackView {
	return trackView{Track: t, StreamURL: fmt.Sprintf("/api/audio/stream/%d", t.ID)}
}

type pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type trackListResponse struct {
	Success    bool        `json:"success"`
	Tracks     []trackView `json:"tracks"`
	Pagination pagination  `json:"pagination"`
}

type trackResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Track   trackView `json:"track"`
}

// UploadTrackHandler handles audio uploads.
// Expected multipart form fields:
// - audio: .mp3 or .m4a file (required)
// - cover: .jpg, .jpeg or .png image (optional)
// - title: at least 3 characters
// - genre: one of model.Genres
// - isPrivate: "true" or "false" (optional)
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	caller := IdentityFromContext(r.Context())

	// two files plus form fields
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.rejectUpload(w, http.StatusRequestEntityTooLarge, "Upload too large")
			return
		}
		h.rejectUpload(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	title := strings.TrimSpace(r.FormValue("title"))
	if len([]rune(title)) < 3 {
		h.rejectUpload(w, http.StatusBadRequest, "Title must be at least 3 characters")
		return
	}
	genre := r.FormValue("genre")
	if !model.ValidGenre(genre) {
		h.rejectUpload(w, http.StatusBadRequest, "Invalid genre")
		return
	}
	isPrivate := false
	if v := r.FormValue("isPrivate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.rejectUpload(w, http.StatusBadRequest, "isPrivate must be boolean")
			return
		}
		isPrivate = b
	}

	audioFile, audioHeader, err := r.FormFile("audio")
	if err != nil {
		h.rejectUpload(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer audioFile.Close()

	audioRef, contentType, status, msg := h.storeUpload(r.Context(), storage.KindAudio, caller.ID, audioFile, audioHeader)
	if status != 0 {
		h.rejectUpload(w, status, msg)
		return
	}

	var coverRef string
	coverFile, coverHeader, err := r.FormFile("cover")
	switch {
	case err == nil:
		defer coverFile.Close()
		coverRef, _, status, msg = h.storeUpload(r.Context(), storage.KindCover, caller.ID, coverFile, coverHeader)
		if status != 0 {
			h.removeAssets(r.Context(), audioRef)
			h.rejectUpload(w, status, msg)
			return
		}
	case !errors.Is(err, http.ErrMissingFile):
		h.removeAssets(r.Context(), audioRef)
		h.rejectUpload(w, http.StatusBadRequest, "Invalid cover file")
		return
	}

	track := &model.Track{
		UserID:      caller.ID,
		Title:       title,
		Genre:       genre,
		AudioPath:   audioRef,
		CoverPath:   coverRef,
		ContentType: contentType,
		SizeBytes:   audioHeader.Size,
		IsPrivate:   isPrivate,
	}
	if _, err := h.tracks.CreateTrack(r.Context(), track); err != nil {
		logger.Error("[Upload] 创建音频记录失败", logger.Int64("userId", caller.ID), logger.ErrorField(err))
		h.removeAssets(r.Context(), audioRef, coverRef)
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "Failed to save audio")
		return
	}

	h.stats.Invalidate(r.Context())
	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	logger.Info("[Upload] 上传成功",
		logger.Int64("trackId", track.ID),
		logger.Int64("userId", caller.ID),
		logger.Int64("size", track.SizeBytes),
		logger.Bool("private", track.IsPrivate))
	writeJSON(w, http.StatusCreated, trackResponse{Success: true, Message: "Audio uploaded successfully", Track: newTrackView(track)})
}

func (h *APIHandler) rejectUpload(w http.ResponseWriter, status int, msg string) {
	metrics.UploadsTotal.WithLabelValues("rejected").Inc()
	writeError(w, status, msg)
}

// upload is a file that passed checkUpload and may be stored.
type upload struct {
	kind        storage.AssetKind
	file        multipart.File
	size        int64
	ext         string
	contentType string
}

// checkUpload validates one uploaded file against the rules for kind. A
// non-zero status means the upload must be rejected with msg.
func (h *APIHandler) checkUpload(kind storage.AssetKind, f multipart.File, fh *multipart.FileHeader) (*upload, int, string) {
	if fh.Size > h.cfg.MaxUploadBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("%s file exceeds %d MB", kind, h.cfg.MaxUploadBytes>>20)
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !storage.AllowedExtension(kind, ext) {
		return nil, http.StatusBadRequest, fmt.Sprintf("File type %q not allowed for %s", ext, kind)
	}

	contentType, err := sniffContentType(f, kind, ext)
	if err != nil {
		logger.Warn("[Upload] 文件内容校验失败",
			logger.String("kind", string(kind)),
			logger.String("filename", fh.Filename),
			logger.ErrorField(err))
		return nil, http.StatusBadRequest, fmt.Sprintf("Invalid %s file", kind)
	}
	return &upload{kind: kind, file: f, size: fh.Size, ext: ext, contentType: contentType}, 0, ""
}

// putUpload writes u under a fresh reference in userID's namespace.
func (h *APIHandler) putUpload(ctx context.Context, u *upload, userID int64) (ref string, status int, msg string) {
	ref, err := storage.NewAssetRef(u.kind, userID, u.ext)
	if err != nil {
		return "", http.StatusBadRequest, err.Error()
	}
	if err := h.assets.Put(ctx, ref, u.file, u.size, u.contentType); err != nil {
		logger.Error("[Upload] 保存文件失败", logger.String("ref", ref), logger.ErrorField(err))
		return "", http.StatusServiceUnavailable, "Failed to store file"
	}
	return ref, 0, ""
}

// storeUpload validates one uploaded file and writes it under a fresh
// reference. A non-zero status means the upload must be rejected with msg.
func (h *APIHandler) storeUpload(ctx context.Context, kind storage.AssetKind, userID int64, f multipart.File, fh *multipart.FileHeader) (ref, contentType string, status int, msg string) {
	u, status, msg := h.checkUpload(kind, f, fh)
	if status != 0 {
		return "", "", status, msg
	}
	ref, status, msg = h.putUpload(ctx, u, userID)
	return ref, u.contentType, status, msg
}

// parseForm reads a multipart or urlencoded body capped at limit bytes. The
// returned cleanup removes any temporary files.
func parseForm(w http.ResponseWriter, r *http.Request, limit int64) (cleanup func(), status int, msg string) {
	cleanup = func() {}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := r.ParseMultipartForm(32 << 20)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return cleanup, http.StatusRequestEntityTooLarge, "Upload too large"
		}
		return cleanup, http.StatusBadRequest, "Invalid form body"
	}
	if r.MultipartForm != nil {
		cleanup = func() { r.MultipartForm.RemoveAll() }
	}
	return cleanup, 0, ""
}

// optionalFile returns the named form file, or nil when the field is absent.
func optionalFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	if r.MultipartForm == nil {
		return nil, nil, nil
	}
	f, fh, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	return f, fh, err
}

// sniffContentType checks the leading bytes of f against the declared
// extension and rewinds f.
func sniffContentType(f multipart.File, kind storage.AssetKind, ext string) (string, error) {
	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	switch kind {
	case storage.KindAudio:
		switch {
		case ext == ".mp3" && detected.Is("audio/mpeg"):
			return "audio/mpeg", nil
		case ext == ".m4a" && (detected.Is("audio/x-m4a") || detected.Is("audio/mp4") || detected.Is("video/mp4")):
			return "audio/mp4", nil
		}
	default:
		if detected.Is("image/jpeg") || detected.Is("image/png") {
			return detected.String(), nil
		}
	}
	return "", fmt.Errorf("%w: detected %s", errUnsupportedMedia, detected.String())
}

// removeAssets deletes refs, ignoring empty ones and ones already gone.
func (h *APIHandler) removeAssets(ctx context.Context, refs ...string) error {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := h.assets.Remove(ctx, ref); err != nil && !errors.Is(err, storage.ErrAssetNotFound) {
			logger.Error("删除文件失败", logger.String("ref", ref), logger.ErrorField(err))
			return err
		}
	}
	return nil
}

func parseListOptions(r *http.Request) (repository.ListOptions, string) {
	q := r.URL.Query()
	opts := repository.ListOptions{Genre: q.Get("genre"), Search: strings.TrimSpace(q.Get("search"))}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, "Page must be a positive integer"
		}
		opts.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return opts, "Limit must be between 1 and 100"
		}
		opts.Limit = n
	}
	if opts.Genre != "" && !model.ValidGenre(opts.Genre) {
		return opts, "Invalid genre filter"
	}
	return opts.Normalize(), ""
}

func writeTrackList(w http.ResponseWriter, tracks []*model.Track, total int64, opts repository.ListOptions) {
	views := make([]trackView, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, newTrackView(t))
	}
	writeJSON(w, http.StatusOK, trackListResponse{
		Success:    true,
		Tracks:     views,
		Pagination: newPagination(total, opts),
	})
}

func newPagination(total int64, opts repository.ListOptions) pagination {
	pages := (total + int64(opts.Limit) - 1) / int64(opts.Limit)
	return pagination{Page: opts.Page, Limit: opts.Limit, Total: total, Pages: pages}
}

// ListTracksHandler lists public tracks.
func (h *APIHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	opts, msg := parseListOptions(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	tracks, total, err := h.tracks.ListPublicTracks(r.Context(), opts)
	if err != nil {
		logger.Error("获取音频列表失败", logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to list audio")
		return
	}
	writeTrackList(w, tracks, total, opts)
}

// MyTracksHandler lists every track owned by the caller, private ones included.
func (h *APIHandler) MyTracksHandler(w http.ResponseWriter, r *http.Request) {
	opts, msg := parseListOptions(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	caller := IdentityFromContext(r.Context())
	tracks, total, err := h.tracks.ListTracksByUser(r.Context(), caller.ID, opts)
	if err != nil {
		logger.Error("获取用户音频失败", logger.Int64("userId", caller.ID), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to list audio")
		return
	}
	writeTrackList(w, tracks, total, opts)
}

// UpdateTrackHandler edits a track. Expected multipart or urlencoded fields,
// all optional, absent ones keep their value:
// - title: at least 3 characters
// - genre: one of model.Genres
// - isPrivate: "true" or "false"
// - cover: .jpg, .jpeg or .png image replacing the current one
func (h *APIHandler) UpdateTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, msgAudioNotFound)
		return
	}
	caller := IdentityFromContext(r.Context())

	cleanup, status, msg := parseForm(w, r, h.cfg.MaxUploadBytes+(1<<20))
	defer cleanup()
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	track, err := h.tracks.FindTrack(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			writeError(w, http.StatusNotFound, msgAudioNotFound)
			return
		}
		logger.Error("查询音频失败", logger.Int64("trackId", id), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to update audio")
		return
	}
	if !access.CanManage(track, caller).Allowed {
		writeError(w, http.StatusForbidden, "Not authorized to update this audio")
		return
	}

	if v := strings.TrimSpace(r.FormValue("title")); v != "" {
		if len([]rune(v)) < 3 {
			writeError(w, http.StatusBadRequest, "Title must be at least 3 characters")
			return
		}
		track.Title = v
	}
	if v := r.FormValue("genre"); v != "" {
		if !model.ValidGenre(v) {
			writeError(w, http.StatusBadRequest, "Invalid genre")
			return
		}
		track.Genre = v
	}
	if v := r.FormValue("isPrivate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "isPrivate must be boolean")
			return
		}
		track.IsPrivate = b
	}

	coverFile, coverHeader, err := optionalFile(r, "cover")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid cover file")
		return
	}
	oldCover := track.CoverPath
	if coverFile != nil {
		defer coverFile.Close()
		// covers stay in the owner's namespace even when an admin edits
		ref, _, status, msg := h.storeUpload(r.Context(), storage.KindCover, track.UserID, coverFile, coverHeader)
		if status != 0 {
			writeError(w, status, msg)
			return
		}
		track.CoverPath = ref
	}

	if err := h.tracks.UpdateTrack(r.Context(), track); err != nil {
		if track.CoverPath != oldCover {
			h.removeAssets(r.Context(), track.CoverPath)
		}
		if errors.Is(err, repository.ErrTrackNotFound) {
			writeError(w, http.StatusNotFound, msgAudioNotFound)
			return
		}
		logger.Error("更新音频记录失败", logger.Int64("trackId", id), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to update audio")
		return
	}
	if track.CoverPath != oldCover {
		// the record already points at the new cover; a stale file is only wasted space
		h.removeAssets(r.Context(), oldCover)
	}

	h.stats.Invalidate(r.Context())
	logger.Info("音频已更新", logger.Int64("trackId", id), logger.Int64("by", caller.ID))
	writeJSON(w, http.StatusOK, trackResponse{Success: true, Message: "Audio updated successfully", Track: newTrackView(track)})
}

// DeleteTrackHandler removes a track's files and then its record. Only the
// owner or an admin may delete.
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, msgAudioNotFound)
		return
	}
	caller := IdentityFromContext(r.Context())

	track, err := h.tracks.FindTrack(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			writeError(w, http.StatusNotFound, msgAudioNotFound)
			return
		}
		logger.Error("查询音频失败", logger.Int64("trackId", id), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to delete audio")
		return
	}

	if !access.CanManage(track, caller).Allowed {
		writeError(w, http.StatusForbidden, "Not authorized to delete this audio")
		return
	}

	if err := h.removeAssets(r.Context(), track.AudioPath, track.CoverPath); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to delete audio files")
		return
	}
	if err := h.tracks.DeleteTrack(r.Context(), id); err != nil && !errors.Is(err, repository.ErrTrackNotFound) {
		logger.Error("删除音频记录失败", logger.Int64("trackId", id), logger.ErrorField(err))
		writeError(w, http.StatusServiceUnavailable, "Failed to delete audio")
		return
	}

	h.stats.Invalidate(r.Context())
	logger.Info("音频已删除", logger.Int64("trackId", id), logger.Int64("by", caller.ID))
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Audio deleted successfully"})
}
