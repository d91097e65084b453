package model

// GenreCount is the number of tracks in one genre.
type GenreCount struct {
	Genre string `json:"genre"`
	Count int64  `json:"count"`
}

// LibraryStats is the admin overview of the library.
type LibraryStats struct {
	TotalUsers  int64        `json:"totalUsers"`
	TotalTracks int64        `json:"totalTracks"`
	TotalPlays  int64        `json:"totalPlays"`
	Genres      []GenreCount `json:"genres"`
	TopTracks   []*Track     `json:"topTracks"`
}
