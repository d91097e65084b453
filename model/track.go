package model

import "time"

// Genres accepted for uploaded tracks.
var Genres = []string{"education", "religion", "comedy", "fiction", "self-help"}

// DefaultAudioContentType is served when a track has no recorded media type.
const DefaultAudioContentType = "audio/mpeg"

// Track represents an uploaded audio track.
type Track struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      int64     `json:"userId" gorm:"column:user_id;not null;index"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Genre       string    `json:"genre" gorm:"size:32;not null;index"`
	AudioPath   string    `json:"-" gorm:"column:audio_path;size:767;not null"` // asset reference, never exposed directly
	CoverPath   string    `json:"coverPath,omitempty" gorm:"column:cover_path;size:767"`
	ContentType string    `json:"contentType" gorm:"column:content_type;size:64"`
	SizeBytes   int64     `json:"sizeBytes" gorm:"column:size_bytes"`
	IsPrivate   bool      `json:"isPrivate" gorm:"column:is_private;not null;default:false;index"`
	PlayCount   int64     `json:"playCount" gorm:"column:play_count;not null;default:0"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// MediaType returns the content type to stream the track's audio with.
func (t *Track) MediaType() string {
	if t.ContentType == "" {
		return DefaultAudioContentType
	}
	return t.ContentType
}

// ValidGenre reports whether g is one of Genres.
func ValidGenre(g string) bool {
	for _, v := range Genres {
		if v == g {
			return true
		}
	}
	return false
}
