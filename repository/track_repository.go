package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"audiolib/model"
)

// ErrTrackNotFound is returned when no track has the requested ID.
var ErrTrackNotFound = errors.New("track not found")

// ListOptions controls paging and filtering of track listings.
type ListOptions struct {
	Page   int
	Limit  int
	Genre  string
	Search string
}

// Normalize applies defaults: page 1, limit 10, limit capped at 100.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	return o
}

func (o ListOptions) offset() int {
	return (o.Page - 1) * o.Limit
}

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	FindTrack(ctx context.Context, id int64) (*model.Track, error)
	// IncrementPlayCount adds one to the play counter as a single atomic
	// update at the store; it never reads the old value first.
	IncrementPlayCount(ctx context.Context, id int64) error
	CreateTrack(ctx context.Context, track *model.Track) (int64, error)
	// UpdateTrack saves the editable fields: title, genre, privacy and cover.
	UpdateTrack(ctx context.Context, track *model.Track) error
	DeleteTrack(ctx context.Context, id int64) error
	ListPublicTracks(ctx context.Context, opts ListOptions) ([]*model.Track, int64, error)
	ListTracksByUser(ctx context.Context, userID int64, opts ListOptions) ([]*model.Track, int64, error)
	// ListAllTracks pages through every track, private ones included.
	ListAllTracks(ctx context.Context, opts ListOptions) ([]*model.Track, int64, error)
	Stats(ctx context.Context, top int) (*model.LibraryStats, error)
}

// MySQLTrackRepository implements TrackRepository for MySQL.
type MySQLTrackRepository struct {
	db *sql.DB
}

// NewMySQLTrackRepository creates a new instance of MySQLTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) *MySQLTrackRepository {
	return &MySQLTrackRepository{db: db}
}

const trackColumns = `id, user_id, title, genre, audio_path, cover_path, content_type, size_bytes, is_private, play_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*model.Track, error) {
	track := &model.Track{}
	var cover, contentType sql.NullString
	err := row.Scan(&track.ID, &track.UserID, &track.Title, &track.Genre, &track.AudioPath, &cover,
		&contentType, &track.SizeBytes, &track.IsPrivate, &track.PlayCount, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	track.CoverPath = cover.String
	track.ContentType = contentType.String
	return track, nil
}

// FindTrack retrieves a track by its ID.
func (r *MySQLTrackRepository) FindTrack(ctx context.Context, id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// IncrementPlayCount bumps play_count inside the database in one statement.
func (r *MySQLTrackRepository) IncrementPlayCount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tracks SET play_count = play_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment play count for track ID %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for track ID %d: %w", id, err)
	}
	if n == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// CreateTrack adds a new track to the database.
func (r *MySQLTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (user_id, title, genre, audio_path, cover_path, content_type, size_bytes, is_private, play_count, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`
	now := time.Now()
	res, err := r.db.ExecContext(ctx, query, track.UserID, track.Title, track.Genre, track.AudioPath,
		track.CoverPath, track.ContentType, track.SizeBytes, track.IsPrivate, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	track.ID = id
	track.CreatedAt, track.UpdatedAt = now, now
	return id, nil
}

// UpdateTrack writes title, genre, is_private and cover_path back to the row.
func (r *MySQLTrackRepository) UpdateTrack(ctx context.Context, track *model.Track) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET title = ?, genre = ?, is_private = ?, cover_path = ?, updated_at = ? WHERE id = ?`,
		track.Title, track.Genre, track.IsPrivate, track.CoverPath, now, track.ID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrack for track ID %d: %w", track.ID, err)
	}
	// MySQL reports 0 affected rows when nothing changed, so only a lookup
	// can tell a no-op from a missing row.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.FindTrack(ctx, track.ID); err != nil {
			return err
		}
	}
	track.UpdatedAt = now
	return nil
}

// DeleteTrack removes the track record. Backing assets are the caller's concern.
func (r *MySQLTrackRepository) DeleteTrack(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to execute DeleteTrack for track ID %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTrackNotFound
	}
	return nil
}

// filtered appends the genre and title filters of opts to where.
func filtered(where []string, opts ListOptions) (string, []any) {
	args := []any{}
	if opts.Genre != "" {
		where = append(where, "genre = ?")
		args = append(args, opts.Genre)
	}
	if opts.Search != "" {
		where = append(where, "title LIKE ?")
		args = append(args, "%"+escapeLike(opts.Search)+"%")
	}
	if len(where) == 0 {
		return "TRUE", args
	}
	return strings.Join(where, " AND "), args
}

// ListPublicTracks pages through public tracks, newest first.
func (r *MySQLTrackRepository) ListPublicTracks(ctx context.Context, opts ListOptions) ([]*model.Track, int64, error) {
	opts = opts.Normalize()
	where, args := filtered([]string{"is_private = FALSE"}, opts)
	return r.list(ctx, where, args, opts)
}

// ListAllTracks pages through every track for the admin console.
func (r *MySQLTrackRepository) ListAllTracks(ctx context.Context, opts ListOptions) ([]*model.Track, int64, error) {
	opts = opts.Normalize()
	where, args := filtered(nil, opts)
	return r.list(ctx, where, args, opts)
}

// ListTracksByUser pages through every track owned by userID.
func (r *MySQLTrackRepository) ListTracksByUser(ctx context.Context, userID int64, opts ListOptions) ([]*model.Track, int64, error) {
	return r.list(ctx, "user_id = ?", []any{userID}, opts.Normalize())
}

func (r *MySQLTrackRepository) list(ctx context.Context, where string, args []any, opts ListOptions) ([]*model.Track, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tracks: %w", err)
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0, opts.Limit)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during rows iteration: %w", err)
	}
	return tracks, total, nil
}

// Stats aggregates library wide counters for the admin dashboard.
func (r *MySQLTrackRepository) Stats(ctx context.Context, top int) (*model.LibraryStats, error) {
	stats := &model.LibraryStats{Genres: []model.GenreCount{}, TopTracks: []*model.Track{}}

	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(play_count), 0) FROM tracks`).
		Scan(&stats.TotalTracks, &stats.TotalPlays); err != nil {
		return nil, fmt.Errorf("failed to aggregate tracks: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT genre, COUNT(*) AS n FROM tracks GROUP BY genre ORDER BY n DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to group tracks by genre: %w", err)
	}
	for rows.Next() {
		var g model.GenreCount
		if err := rows.Scan(&g.Genre, &g.Count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan genre count: %w", err)
		}
		stats.Genres = append(stats.Genres, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during genre iteration: %w", err)
	}

	rows, err = r.db.QueryContext(ctx, `SELECT `+trackColumns+` FROM tracks ORDER BY play_count DESC, id ASC LIMIT ?`, top)
	if err != nil {
		return nil, fmt.Errorf("failed to query top tracks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan top track: %w", err)
		}
		stats.TopTracks = append(stats.TopTracks, track)
	}
	return stats, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
