package stream

import (
	"errors"
	"fmt"
)

// Kind classifies a failed stream request.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound covers both a missing track record and a missing asset.
	KindNotFound
	KindForbidden
	// KindRangeNotSatisfiable can be retried by the caller with a corrected range.
	KindRangeNotSatisfiable
	// KindStorageUnavailable is an I/O failure after the asset was confirmed
	// present, or a metadata store failure. It is the only operational anomaly.
	KindStorageUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindRangeNotSatisfiable:
		return "range_not_satisfiable"
	case KindStorageUnavailable:
		return "storage_unavailable"
	default:
		return "unknown"
	}
}

// Reasons distinguish failures of the same kind in logs and metrics.
const (
	ReasonTrackMissing  = "track_missing"
	ReasonAssetMissing  = "asset_missing"
	ReasonPolicyDenied  = "policy_denied"
	ReasonBadRange      = "bad_range"
	ReasonMetadataError = "metadata_error"
	ReasonStatFailed    = "stat_failed"
	ReasonOpenFailed    = "open_failed"
	// ReasonReadFailed is only seen after headers went out, as a truncated body.
	ReasonReadFailed = "read_failed"
)

// Error is a failed stream request.
type Error struct {
	Kind    Kind
	Reason  string
	TrackID int64
	// Total is the asset length, set for KindRangeNotSatisfiable.
	Total int64
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream track %d: %s (%s): %v", e.TrackID, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("stream track %d: %s (%s)", e.TrackID, e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
