// Package access decides whether a caller may read a track's audio.
package access

import "audiolib/model"

// Reason explains a denial.
type Reason string

const (
	// ReasonForbidden is returned for every denial. Anonymous callers and
	// authenticated non-owners are intentionally not told apart.
	ReasonForbidden Reason = "forbidden"
)

// Decision is the outcome of a policy check. It is computed per request and
// must not be cached: visibility and ownership can change between requests.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allow and Deny are the two possible decisions.
var (
	Allow = Decision{Allowed: true}
	Deny  = Decision{Allowed: false, Reason: ReasonForbidden}
)

// CanStream reports whether requester may read the bytes of track.
// requester is nil for anonymous callers.
func CanStream(track *model.Track, requester *model.Identity) Decision {
	if track == nil {
		return Deny
	}
	if !track.IsPrivate {
		return Allow
	}
	if requester == nil {
		return Deny
	}
	if requester.ID == track.UserID || requester.IsAdmin() {
		return Allow
	}
	return Deny
}

// CanManage reports whether requester may modify or delete track.
// Unlike streaming, visibility does not matter here.
func CanManage(track *model.Track, requester *model.Identity) Decision {
	if track == nil || requester == nil {
		return Deny
	}
	if requester.ID == track.UserID || requester.IsAdmin() {
		return Allow
	}
	return Deny
}
