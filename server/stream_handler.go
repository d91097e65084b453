package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"audiolib/core/stream"
	"audiolib/logger"
	"audiolib/metrics"

	"github.com/gorilla/mux"
)

const (
	msgAudioNotFound    = "Audio not found"
	msgAccessDenied     = "Access denied"
	msgRangeUnsatisfied = "Requested range not satisfiable"
	msgAudioUnavailable = "Audio temporarily unavailable"
)

// StreamAudioHandler serves GET and HEAD /api/audio/stream/{id}.
func (h *APIHandler) StreamAudioHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Accept-Ranges", "bytes")

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		// an unparseable id can never name a track
		metrics.StreamOutcomesTotal.WithLabelValues("not_found", stream.ReasonTrackMissing).Inc()
		writeError(w, http.StatusNotFound, msgAudioNotFound)
		return
	}

	req := stream.Request{
		TrackID:   id,
		Requester: IdentityFromContext(r.Context()),
		Range:     r.Header.Get("Range"),
		CountPlay: r.Method != http.MethodHead,
	}

	s, err := h.streams.Open(r.Context(), req)
	if err != nil {
		h.writeStreamError(w, r, id, err)
		return
	}
	defer s.Body.Close()

	w.Header().Set("Content-Type", s.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(s.Span.Length(), 10))
	status := http.StatusOK
	outcome := "full"
	if s.Partial {
		w.Header().Set("Content-Range", s.Span.ContentRange(s.Total))
		status = http.StatusPartialContent
		outcome = "partial"
	}
	if r.Method == http.MethodHead {
		outcome = "head"
	}
	metrics.StreamOutcomesTotal.WithLabelValues(outcome, "").Inc()
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	body := &sourceReader{r: s.Body}
	n, err := io.CopyN(w, body, s.Span.Length())
	metrics.StreamBytesTotal.Add(float64(n))
	if err == nil {
		return
	}
	// headers are already out; the only option left is to cut the body short
	fields := []logger.Field{
		logger.Int64("trackId", id),
		logger.Int64("sent", n),
		logger.Int64("expected", s.Span.Length()),
	}
	switch {
	case r.Context().Err() != nil || errors.Is(err, context.Canceled):
		logger.Debug("客户端中断音频流", fields...)
	case body.err != nil || errors.Is(err, io.EOF):
		// the store failed or holds fewer bytes than it reported
		if body.err != nil {
			err = body.err
		}
		metrics.StreamOutcomesTotal.WithLabelValues(stream.KindStorageUnavailable.String(), stream.ReasonReadFailed).Inc()
		logger.Error("读取音频存储失败", append(fields, logger.ErrorField(err))...)
	default:
		// writes fail once the client has gone away
		logger.Debug("音频流写入失败", append(fields, logger.ErrorField(err))...)
	}
}

// sourceReader remembers the error of the storage side of a copy, so that a
// failed copy can be blamed on the store or on the client.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

// writeStreamError maps a stream failure to its response. Clients only see
// the status: a missing record and a missing file look the same, as do an
// anonymous and a non-owner denial. Operators tell them apart by log level
// and reason.
func (h *APIHandler) writeStreamError(w http.ResponseWriter, r *http.Request, id int64, err error) {
	var se *stream.Error
	if !errors.As(err, &se) {
		logger.Error("音频流未知错误", logger.Int64("trackId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	metrics.StreamOutcomesTotal.WithLabelValues(se.Kind.String(), se.Reason).Inc()

	fields := []logger.Field{
		logger.Int64("trackId", id),
		logger.String("reason", se.Reason),
		logger.String("method", r.Method),
	}
	if se.Err != nil {
		fields = append(fields, logger.ErrorField(se.Err))
	}

	switch se.Kind {
	case stream.KindNotFound:
		if se.Reason == stream.ReasonAssetMissing {
			// record exists but its file is gone: a data integrity problem
			logger.Warn("音频文件缺失", fields...)
		} else {
			logger.Info("音频记录不存在", fields...)
		}
		writeError(w, http.StatusNotFound, msgAudioNotFound)
	case stream.KindForbidden:
		logger.Info("拒绝访问私有音频", fields...)
		writeError(w, http.StatusForbidden, msgAccessDenied)
	case stream.KindRangeNotSatisfiable:
		logger.Info("Range不可满足", append(fields, logger.String("range", r.Header.Get("Range")))...)
		w.Header().Set("Content-Range", stream.UnsatisfiedRange(se.Total))
		writeError(w, http.StatusRequestedRangeNotSatisfiable, msgRangeUnsatisfied)
	case stream.KindStorageUnavailable:
		logger.Error("音频存储不可用", fields...)
		writeError(w, http.StatusServiceUnavailable, msgAudioUnavailable)
	default:
		logger.Error("音频流未知错误", fields...)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
