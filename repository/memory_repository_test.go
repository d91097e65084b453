package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiolib/model"
)

func TestMemoryConcurrentIncrements(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.CreateTrack(ctx, &model.Track{UserID: 1, Title: "Song", Genre: "fiction"})
	require.NoError(t, err)

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.IncrementPlayCount(ctx, id))
		}()
	}
	wg.Wait()

	track, err := store.FindTrack(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(n), track.PlayCount)
}

func TestMemoryIncrementMissing(t *testing.T) {
	assert.ErrorIs(t, NewMemoryStore().IncrementPlayCount(context.Background(), 1), ErrTrackNotFound)
}

func TestMemoryListPublicTracks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, tr := range []*model.Track{
		{UserID: 1, Title: "Morning Talk", Genre: "education"},
		{UserID: 1, Title: "Secret", Genre: "education", IsPrivate: true},
		{UserID: 2, Title: "Evening Talk", Genre: "comedy"},
		{UserID: 2, Title: "Night talk", Genre: "education"},
	} {
		_, err := store.CreateTrack(ctx, tr)
		require.NoError(t, err)
	}

	tracks, total, err := store.ListPublicTracks(ctx, ListOptions{Genre: "education", Search: "TALK"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, tracks, 2)
	assert.Equal(t, "Night talk", tracks[0].Title, "newest first")

	page, total, err := store.ListPublicTracks(ctx, ListOptions{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 1)

	mine, _, err := store.ListTracksByUser(ctx, 1, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, mine, 2, "owners see their private tracks")
}

func TestMemoryStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, err := store.CreateUser(ctx, &model.User{Name: "a", Email: "a@x.io"})
	require.NoError(t, err)
	a, _ := store.CreateTrack(ctx, &model.Track{Title: "a", Genre: "comedy"})
	b, _ := store.CreateTrack(ctx, &model.Track{Title: "b", Genre: "comedy"})
	_, _ = store.CreateTrack(ctx, &model.Track{Title: "c", Genre: "fiction"})
	for i := 0; i < 3; i++ {
		require.NoError(t, store.IncrementPlayCount(ctx, b))
	}
	require.NoError(t, store.IncrementPlayCount(ctx, a))

	stats, err := store.Stats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalUsers)
	assert.Equal(t, int64(3), stats.TotalTracks)
	assert.Equal(t, int64(4), stats.TotalPlays)
	assert.Equal(t, []model.GenreCount{{Genre: "comedy", Count: 2}, {Genre: "fiction", Count: 1}}, stats.Genres)
	require.Len(t, stats.TopTracks, 2)
	assert.Equal(t, b, stats.TopTracks[0].ID)
}

func TestMemoryUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.CreateUser(ctx, &model.User{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, &model.User{Name: "Ann2", Email: "ANN@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	u, err := store.GetUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, model.RoleUser, u.Role)

	_, err = store.GetUserByID(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryUpdateTrack(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id, err := store.CreateTrack(ctx, &model.Track{UserID: 1, Title: "Old", Genre: "comedy", AudioPath: "audio/user_1/a.mp3"})
	require.NoError(t, err)
	require.NoError(t, store.IncrementPlayCount(ctx, id))

	err = store.UpdateTrack(ctx, &model.Track{ID: id, Title: "New", Genre: "fiction", IsPrivate: true, CoverPath: "covers/user_1/c.png"})
	require.NoError(t, err)

	track, err := store.FindTrack(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "New", track.Title)
	assert.Equal(t, "fiction", track.Genre)
	assert.True(t, track.IsPrivate)
	assert.Equal(t, "covers/user_1/c.png", track.CoverPath)
	assert.Equal(t, "audio/user_1/a.mp3", track.AudioPath, "audio is not editable")
	assert.Equal(t, int64(1), track.PlayCount, "plays survive an edit")

	assert.ErrorIs(t, store.UpdateTrack(ctx, &model.Track{ID: 999}), ErrTrackNotFound)
}

func TestMemoryListAllTracks(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.CreateTrack(ctx, &model.Track{UserID: 1, Title: "Open", Genre: "comedy"})
	_, _ = store.CreateTrack(ctx, &model.Track{UserID: 2, Title: "Secret", Genre: "comedy", IsPrivate: true})

	tracks, total, err := store.ListAllTracks(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "Secret", tracks[0].Title)
}

func TestMemoryUpdateAndListUsers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a, _ := store.CreateUser(ctx, &model.User{Name: "Ann", Email: "ann@example.com"})
	_, _ = store.CreateUser(ctx, &model.User{Name: "Bob", Email: "bob@example.com"})

	require.NoError(t, store.UpdateUser(ctx, &model.User{ID: a, Name: "Ann B", ProfilePicture: "profiles/user_1/p.png"}))
	u, err := store.GetUserByID(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Ann B", u.Name)
	assert.Equal(t, "profiles/user_1/p.png", u.ProfilePicture)
	assert.Equal(t, "ann@example.com", u.Email)

	assert.ErrorIs(t, store.UpdateUser(ctx, &model.User{ID: 99}), ErrUserNotFound)

	users, total, err := store.ListUsers(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, users, 1)
	assert.Equal(t, "Bob", users[0].Name, "newest first")
}
