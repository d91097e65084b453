package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// AssetKind identifies what an uploaded file is used for.
type AssetKind string

const (
	KindAudio          AssetKind = "audio"
	KindCover          AssetKind = "cover"
	KindProfilePicture AssetKind = "profilePicture"
)

type kindRule struct {
	dir        string
	extensions []string
}

// kindRules is the single place an asset kind is turned into a storage
// namespace. Callers resolve the kind once at the upload boundary.
var kindRules = map[AssetKind]kindRule{
	KindAudio:          {dir: "audio", extensions: []string{".mp3", ".m4a"}},
	KindCover:          {dir: "covers", extensions: []string{".jpg", ".jpeg", ".png"}},
	KindProfilePicture: {dir: "profiles", extensions: []string{".jpg", ".jpeg", ".png"}},
}

// Namespace returns the storage prefix for kind owned by userID,
// e.g. "audio/user_42".
func Namespace(kind AssetKind, userID int64) (string, error) {
	rule, ok := kindRules[kind]
	if !ok {
		return "", fmt.Errorf("unknown asset kind %q", kind)
	}
	return fmt.Sprintf("%s/user_%d", rule.dir, userID), nil
}

// AllowedExtension reports whether ext (with leading dot, any case) may be
// stored as kind.
func AllowedExtension(kind AssetKind, ext string) bool {
	rule, ok := kindRules[kind]
	if !ok {
		return false
	}
	ext = strings.ToLower(ext)
	for _, e := range rule.extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// NewAssetRef allocates a fresh, collision free reference for a new upload.
func NewAssetRef(kind AssetKind, userID int64, ext string) (string, error) {
	if !AllowedExtension(kind, ext) {
		return "", fmt.Errorf("file type %q not allowed for %s", ext, kind)
	}
	ns, err := Namespace(kind, userID)
	if err != nil {
		return "", err
	}
	return path.Join(ns, uuid.NewString()+strings.ToLower(ext)), nil
}
