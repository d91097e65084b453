// Package stream serves stored audio under byte-range semantics and records
// play initiations.
package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"audiolib/core/access"
	"audiolib/logger"
	"audiolib/metrics"
	"audiolib/model"
	"audiolib/repository"
	"audiolib/storage"
)

// TrackStore is the metadata the service needs.
type TrackStore interface {
	FindTrack(ctx context.Context, id int64) (*model.Track, error)
	IncrementPlayCount(ctx context.Context, id int64) error
}

// AssetReader is the read side of storage.AssetStore.
type AssetReader interface {
	Stat(ctx context.Context, ref string) (storage.AssetInfo, error)
	Open(ctx context.Context, ref string, offset, length int64) (io.ReadCloser, error)
}

// Request is one inbound stream request.
type Request struct {
	TrackID int64
	// Requester is nil for anonymous callers.
	Requester *model.Identity
	// Range is the raw Range header, empty when absent.
	Range string
	// CountPlay is false for HEAD requests, which must not count as plays.
	CountPlay bool
}

// Stream is an opened, authorised byte window ready to be copied to the caller.
// Body must be closed on every path.
type Stream struct {
	Track       *model.Track
	Span        Span
	Total       int64
	Partial     bool
	ContentType string
	Body        io.ReadCloser
}

// Service orchestrates metadata lookup, access policy, play counting and
// range resolution. It holds no per-request state.
type Service struct {
	tracks       TrackStore
	assets       AssetReader
	countTimeout time.Duration
}

// NewService creates a Service.
func NewService(tracks TrackStore, assets AssetReader) *Service {
	return &Service{tracks: tracks, assets: assets, countTimeout: 3 * time.Second}
}

// Open runs a request through resolving, authorising, counting and range
// computing, and returns a reader over exactly the resolved span.
//
// The play counter is incremented once authorisation succeeds and the asset is
// confirmed present, before the range is checked and before any byte is sent:
// a play means "initiated", not "completed".
func (s *Service) Open(ctx context.Context, req Request) (*Stream, error) {
	track, err := s.tracks.FindTrack(ctx, req.TrackID)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			return nil, &Error{Kind: KindNotFound, Reason: ReasonTrackMissing, TrackID: req.TrackID}
		}
		return nil, &Error{Kind: KindStorageUnavailable, Reason: ReasonMetadataError, TrackID: req.TrackID, Err: err}
	}

	if decision := access.CanStream(track, req.Requester); !decision.Allowed {
		return nil, &Error{Kind: KindForbidden, Reason: ReasonPolicyDenied, TrackID: track.ID}
	}

	info, err := s.assets.Stat(ctx, track.AudioPath)
	if err != nil {
		if errors.Is(err, storage.ErrAssetNotFound) || errors.Is(err, storage.ErrInvalidRef) {
			return nil, &Error{Kind: KindNotFound, Reason: ReasonAssetMissing, TrackID: track.ID, Err: err}
		}
		return nil, &Error{Kind: KindStorageUnavailable, Reason: ReasonStatFailed, TrackID: track.ID, Err: err}
	}

	if req.CountPlay {
		s.countPlay(ctx, track.ID)
	}

	span, partial, err := ResolveRange(req.Range, info.Size)
	if err != nil {
		return nil, &Error{Kind: KindRangeNotSatisfiable, Reason: ReasonBadRange, TrackID: track.ID, Total: info.Size, Err: err}
	}

	body, err := s.assets.Open(ctx, track.AudioPath, span.Start, span.Length())
	if err != nil {
		// the file vanished between Stat and Open
		if errors.Is(err, storage.ErrAssetNotFound) {
			return nil, &Error{Kind: KindNotFound, Reason: ReasonAssetMissing, TrackID: track.ID, Err: err}
		}
		return nil, &Error{Kind: KindStorageUnavailable, Reason: ReasonOpenFailed, TrackID: track.ID, Err: err}
	}

	return &Stream{
		Track:       track,
		Span:        span,
		Total:       info.Size,
		Partial:     partial,
		ContentType: track.MediaType(),
		Body:        body,
	}, nil
}

// countPlay records the play with a single atomic store update. A failure is
// logged and does not fail the stream.
func (s *Service) countPlay(ctx context.Context, trackID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.countTimeout)
	defer cancel()

	if err := s.tracks.IncrementPlayCount(ctx, trackID); err != nil {
		metrics.PlayCountErrorsTotal.Inc()
		logger.Error("增加播放次数失败",
			logger.Int64("trackId", trackID),
			logger.ErrorField(err))
		return
	}
	metrics.PlaysTotal.Inc()
}
