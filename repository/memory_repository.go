package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"audiolib/model"
)

// memoryTrack keeps the play counter outside the record so increments never
// take the map lock for writing.
type memoryTrack struct {
	track model.Track
	plays atomic.Int64
}

// MemoryStore is an in-process TrackRepository and UserRepository, used for
// development mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	tracks map[int64]*memoryTrack
	users  map[int64]*model.User
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracks: make(map[int64]*memoryTrack),
		users:  make(map[int64]*model.User),
	}
}

func (m *MemoryStore) snapshot(e *memoryTrack) *model.Track {
	t := e.track
	t.PlayCount = e.plays.Load()
	return &t
}

// FindTrack implements TrackRepository.
func (m *MemoryStore) FindTrack(ctx context.Context, id int64) (*model.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tracks[id]
	if !ok {
		return nil, ErrTrackNotFound
	}
	return m.snapshot(e), nil
}

// IncrementPlayCount implements TrackRepository with an atomic add.
func (m *MemoryStore) IncrementPlayCount(ctx context.Context, id int64) error {
	m.mu.RLock()
	e, ok := m.tracks[id]
	m.mu.RUnlock()
	if !ok {
		return ErrTrackNotFound
	}
	e.plays.Add(1)
	return nil
}

// CreateTrack implements TrackRepository.
func (m *MemoryStore) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now()
	track.ID = m.nextID
	track.CreatedAt, track.UpdatedAt = now, now
	e := &memoryTrack{track: *track}
	e.plays.Store(track.PlayCount)
	m.tracks[track.ID] = e
	return track.ID, nil
}

// UpdateTrack implements TrackRepository.
func (m *MemoryStore) UpdateTrack(ctx context.Context, track *model.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tracks[track.ID]
	if !ok {
		return ErrTrackNotFound
	}
	e.track.Title = track.Title
	e.track.Genre = track.Genre
	e.track.IsPrivate = track.IsPrivate
	e.track.CoverPath = track.CoverPath
	e.track.UpdatedAt = time.Now()
	track.UpdatedAt = e.track.UpdatedAt
	return nil
}

// DeleteTrack implements TrackRepository.
func (m *MemoryStore) DeleteTrack(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracks[id]; !ok {
		return ErrTrackNotFound
	}
	delete(m.tracks, id)
	return nil
}

func matches(t *model.Track, opts ListOptions) bool {
	if opts.Genre != "" && t.Genre != opts.Genre {
		return false
	}
	return opts.Search == "" || strings.Contains(strings.ToLower(t.Title), strings.ToLower(opts.Search))
}

// ListPublicTracks implements TrackRepository.
func (m *MemoryStore) ListPublicTracks(ctx context.Context, opts ListOptions) ([]*model.Track, int64, error) {
	return m.list(opts.Normalize(), func(t *model.Track) bool {
		return !t.IsPrivate && matches(t, opts)
	})
}

// ListAllTracks implements TrackRepository.
func (m *MemoryStore) ListAllTracks(ctx context.Context, opts ListOptions) ([]*model.Track, int64, error) {
	return m.list(opts.Normalize(), func(t *model.Track) bool { return matches(t, opts) })
}

// ListTracksByUser implements TrackRepository.
func (m *MemoryStore) ListTracksByUser(ctx context.Context, userID int64, opts ListOptions) ([]*model.Track, int64, error) {
	return m.list(opts.Normalize(), func(t *model.Track) bool { return t.UserID == userID })
}

func (m *MemoryStore) list(opts ListOptions, keep func(*model.Track) bool) ([]*model.Track, int64, error) {
	m.mu.RLock()
	matched := make([]*model.Track, 0)
	for _, e := range m.tracks {
		if keep(&e.track) {
			matched = append(matched, m.snapshot(e))
		}
	}
	m.mu.RUnlock()

	// newest first; IDs are monotonic so they break timestamp ties
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	start := opts.offset()
	if start >= len(matched) {
		return []*model.Track{}, total, nil
	}
	end := start + opts.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// Stats implements TrackRepository.
func (m *MemoryStore) Stats(ctx context.Context, top int) (*model.LibraryStats, error) {
	m.mu.RLock()
	stats := &model.LibraryStats{TotalUsers: int64(len(m.users)), TotalTracks: int64(len(m.tracks))}
	genres := map[string]int64{}
	all := make([]*model.Track, 0, len(m.tracks))
	for _, e := range m.tracks {
		t := m.snapshot(e)
		stats.TotalPlays += t.PlayCount
		genres[t.Genre]++
		all = append(all, t)
	}
	m.mu.RUnlock()

	stats.Genres = make([]model.GenreCount, 0, len(genres))
	for g, n := range genres {
		stats.Genres = append(stats.Genres, model.GenreCount{Genre: g, Count: n})
	}
	sort.Slice(stats.Genres, func(i, j int) bool {
		if stats.Genres[i].Count != stats.Genres[j].Count {
			return stats.Genres[i].Count > stats.Genres[j].Count
		}
		return stats.Genres[i].Genre < stats.Genres[j].Genre
	})

	sort.Slice(all, func(i, j int) bool {
		if all[i].PlayCount != all[j].PlayCount {
			return all[i].PlayCount > all[j].PlayCount
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > top {
		all = all[:top]
	}
	stats.TopTracks = all
	return stats, nil
}

// CreateUser implements UserRepository.
func (m *MemoryStore) CreateUser(ctx context.Context, user *model.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return 0, ErrEmailTaken
		}
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	m.nextID++
	now := time.Now()
	user.ID = m.nextID
	user.CreatedAt, user.UpdatedAt = now, now
	u := *user
	m.users[user.ID] = &u
	return user.ID, nil
}

// GetUserByID implements UserRepository.
func (m *MemoryStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail implements UserRepository.
func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// UpdateUser implements UserRepository.
func (m *MemoryStore) UpdateUser(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	u.Name = user.Name
	u.ProfilePicture = user.ProfilePicture
	u.UpdatedAt = time.Now()
	user.UpdatedAt = u.UpdatedAt
	return nil
}

// ListUsers implements UserRepository.
func (m *MemoryStore) ListUsers(ctx context.Context, opts ListOptions) ([]*model.User, int64, error) {
	opts = opts.Normalize()
	m.mu.RLock()
	all := make([]*model.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		all = append(all, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := opts.offset()
	if start >= len(all) {
		return []*model.User{}, total, nil
	}
	end := start + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}
