package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiolib/model"
	"audiolib/storage"
)

var (
	mp3Bytes = append([]byte("ID3\x04\x00\x00\x00\x00\x00\x00"), bytes.Repeat([]byte{0xAB}, 2048)...)
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)
)

type uploadFile struct {
	field, name string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...uploadFile) (*bytes.Buffer, http.Header) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, http.Header{"Content-Type": []string{mw.FormDataContentType()}}
}

type uploadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Track   struct {
		ID          int64  `json:"id"`
		UserID      int64  `json:"userId"`
		CoverPath   string `json:"coverPath"`
		ContentType string `json:"contentType"`
		IsPrivate   bool   `json:"isPrivate"`
		StreamURL   string `json:"streamUrl"`
	} `json:"track"`
}

func TestUploadThenStream(t *testing.T) {
	e := newTestEnv(t)
	body, hdr := multipartBody(t,
		map[string]string{"title": "My lecture", "genre": "education", "isPrivate": "true"},
		uploadFile{"audio", "Lecture.MP3", mp3Bytes},
		uploadFile{"cover", "cover.png", pngBytes},
	)
	rec := e.do(http.MethodPost, "/api/audio", e.owner, hdr, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "audioPath")

	var res uploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, e.ownerID, res.Track.UserID)
	assert.Equal(t, "audio/mpeg", res.Track.ContentType)
	assert.True(t, res.Track.IsPrivate)
	assert.True(t, strings.HasPrefix(res.Track.CoverPath, "covers/user_"))

	stored, err := e.store.FindTrack(t.Context(), res.Track.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.AudioPath, "audio/user_"))
	assert.True(t, strings.HasSuffix(stored.AudioPath, ".mp3"))

	got := e.do(http.MethodGet, res.Track.StreamURL, e.owner, nil, nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, mp3Bytes, got.Body.Bytes())
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, res.Track.StreamURL, "", nil, nil).Code)
}

func TestUploadValidation(t *testing.T) {
	e := newTestEnv(t)
	valid := map[string]string{"title": "Fine title", "genre": "comedy"}
	tests := []struct {
		name   string
		fields map[string]string
		files  []uploadFile
		status int
	}{
		{"missing audio", valid, nil, http.StatusBadRequest},
		{"short title", map[string]string{"title": "ab", "genre": "comedy"}, []uploadFile{{"audio", "a.mp3", mp3Bytes}}, http.StatusBadRequest},
		{"bad genre", map[string]string{"title": "Fine title", "genre": "jazz"}, []uploadFile{{"audio", "a.mp3", mp3Bytes}}, http.StatusBadRequest},
		{"bad isPrivate", map[string]string{"title": "Fine title", "genre": "comedy", "isPrivate": "maybe"}, []uploadFile{{"audio", "a.mp3", mp3Bytes}}, http.StatusBadRequest},
		{"wrong extension", valid, []uploadFile{{"audio", "a.wav", mp3Bytes}}, http.StatusBadRequest},
		{"content mismatch", valid, []uploadFile{{"audio", "a.mp3", []byte("just some text, not audio")}}, http.StatusBadRequest},
		{"cover not image", valid, []uploadFile{{"audio", "a.mp3", mp3Bytes}, {"cover", "c.png", mp3Bytes}}, http.StatusBadRequest},
		{"too large", valid, []uploadFile{{"audio", "a.mp3", append(mp3Bytes, make([]byte, 64<<10)...)}}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, hdr := multipartBody(t, tt.fields, tt.files...)
			rec := e.do(http.MethodPost, "/api/audio", e.owner, hdr, body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	// rejected uploads leave nothing behind
	usage, err := e.assets.Usage(t.Context(), "audio")
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.Objects)
	usage, err = e.assets.Usage(t.Context(), "covers")
	require.NoError(t, err)
	assert.Zero(t, usage.Objects)
}

func TestUploadRequiresAuth(t *testing.T) {
	e := newTestEnv(t)
	body, hdr := multipartBody(t, map[string]string{"title": "abc", "genre": "comedy"}, uploadFile{"audio", "a.mp3", mp3Bytes})
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/api/audio", "", hdr, body).Code)
}

type listResult struct {
	Tracks []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"tracks"`
	Pagination pagination `json:"pagination"`
}

func decodeList(t *testing.T, body []byte) listResult {
	t.Helper()
	var res listResult
	require.NoError(t, json.Unmarshal(body, &res))
	return res
}

func TestListTracks(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/api/audio", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeList(t, rec.Body.Bytes())
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, e.public, res.Tracks[0].ID)
	assert.Equal(t, pagination{Page: 1, Limit: 10, Total: 1, Pages: 1}, res.Pagination)

	rec = e.do(http.MethodGet, "/api/audio?genre=comedy", "", nil, nil)
	assert.Empty(t, decodeList(t, rec.Body.Bytes()).Tracks)

	rec = e.do(http.MethodGet, "/api/audio?search=TALK", "", nil, nil)
	assert.Len(t, decodeList(t, rec.Body.Bytes()).Tracks, 1)

	for _, q := range []string{"page=0", "limit=101", "limit=x", "genre=jazz"} {
		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/api/audio?"+q, "", nil, nil).Code, q)
	}
}

func TestMyTracks(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/api/audio/mine", e.owner, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec.Body.Bytes()).Tracks, 2)

	rec = e.do(http.MethodGet, "/api/audio/mine", e.other, nil, nil)
	assert.Empty(t, decodeList(t, rec.Body.Bytes()).Tracks)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/audio/mine", "", nil, nil).Code)
}

func TestDeleteTrack(t *testing.T) {
	e := newTestEnv(t)
	url := "/api/audio/" + strconvID(e.private)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodDelete, url, "", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, url, e.other, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/api/audio/9999", e.owner, nil, nil).Code)

	rec := e.do(http.MethodDelete, url, e.owner, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, err := e.assets.Stat(t.Context(), "audio/user_1/fixture.mp3")
	assert.ErrorIs(t, err, storage.ErrAssetNotFound)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, streamURL(e.private), e.owner, nil, nil).Code)

	// the public track shared the asset; deleting it as admin tolerates the missing file
	rec = e.do(http.MethodDelete, "/api/audio/"+strconvID(e.public), e.admin, nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminStats(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodGet, streamURL(e.public), "", nil, nil)
	e.do(http.MethodGet, streamURL(e.public), "", nil, nil)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/stats", "", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/admin/stats", e.owner, nil, nil).Code)

	rec := e.do(http.MethodGet, "/api/admin/stats", e.admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(3), res.Stats.TotalUsers)
	assert.Equal(t, int64(2), res.Stats.TotalTracks)
	assert.Equal(t, int64(2), res.Stats.TotalPlays)
	require.NotEmpty(t, res.Stats.TopTracks)
	assert.Equal(t, e.public, res.Stats.TopTracks[0].ID)
}

func TestUpdateTrack(t *testing.T) {
	e := newTestEnv(t)
	ctx := t.Context()
	oldCover := "covers/user_1/old.png"
	require.NoError(t, e.assets.Put(ctx, oldCover, bytes.NewReader(pngBytes), int64(len(pngBytes)), "image/png"))
	track, err := e.store.FindTrack(ctx, e.public)
	require.NoError(t, err)
	track.CoverPath = oldCover
	require.NoError(t, e.store.UpdateTrack(ctx, track))
	url := "/api/audio/" + strconvID(e.public)

	body, hdr := multipartBody(t,
		map[string]string{"title": "Renamed talk", "isPrivate": "true"},
		uploadFile{"cover", "new.png", pngBytes},
	)
	rec := e.do(http.MethodPut, url, e.owner, hdr, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res uploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Track.IsPrivate)
	assert.NotEqual(t, oldCover, res.Track.CoverPath)
	assert.True(t, strings.HasPrefix(res.Track.CoverPath, "covers/user_1/"))

	stored, err := e.store.FindTrack(ctx, e.public)
	require.NoError(t, err)
	assert.Equal(t, "Renamed talk", stored.Title)
	assert.Equal(t, "education", stored.Genre, "absent fields keep their value")
	_, err = e.assets.Stat(ctx, oldCover)
	assert.ErrorIs(t, err, storage.ErrAssetNotFound, "old cover is removed")
	_, err = e.assets.Stat(ctx, res.Track.CoverPath)
	assert.NoError(t, err)

	// now private: anonymous listeners are turned away
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, streamURL(e.public), "", nil, nil).Code)
}

func TestUpdateTrackURLEncoded(t *testing.T) {
	e := newTestEnv(t)
	form := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}

	rec := e.do(http.MethodPut, "/api/audio/"+strconvID(e.private), e.admin, form, strings.NewReader("isPrivate=false&genre=comedy"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := e.store.FindTrack(t.Context(), e.private)
	require.NoError(t, err)
	assert.False(t, stored.IsPrivate)
	assert.Equal(t, "comedy", stored.Genre)
	assert.Equal(t, "Private diary", stored.Title)
}

func TestUpdateTrackRejects(t *testing.T) {
	e := newTestEnv(t)
	url := "/api/audio/" + strconvID(e.public)
	form := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}

	tests := []struct {
		name   string
		target string
		token  string
		body   string
		status int
	}{
		{"anonymous", url, "", "title=Another", http.StatusUnauthorized},
		{"not owner", url, e.other, "title=Another", http.StatusForbidden},
		{"missing track", "/api/audio/9999", e.owner, "title=Another", http.StatusNotFound},
		{"short title", url, e.owner, "title=ab", http.StatusBadRequest},
		{"bad genre", url, e.owner, "genre=jazz", http.StatusBadRequest},
		{"bad isPrivate", url, e.owner, "isPrivate=maybe", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPut, tt.target, tt.token, form, strings.NewReader(tt.body))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	body, hdr := multipartBody(t, nil, uploadFile{"cover", "c.png", mp3Bytes})
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, url, e.owner, hdr, body).Code)

	stored, err := e.store.FindTrack(t.Context(), e.public)
	require.NoError(t, err)
	assert.Equal(t, "Public talk", stored.Title)
	assert.Empty(t, stored.CoverPath)
	usage, err := e.assets.Usage(t.Context(), "covers")
	require.NoError(t, err)
	assert.Zero(t, usage.Objects)
}

func TestAdminListings(t *testing.T) {
	e := newTestEnv(t)

	for _, path := range []string{"/api/admin/audios", "/api/admin/users"} {
		assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, path, "", nil, nil).Code, path)
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, path, e.owner, nil, nil).Code, path)
	}

	rec := e.do(http.MethodGet, "/api/admin/audios", e.admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeList(t, rec.Body.Bytes())
	assert.Len(t, res.Tracks, 2, "private tracks included")
	assert.Equal(t, int64(2), res.Pagination.Total)

	rec = e.do(http.MethodGet, "/api/admin/users?limit=2", e.admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	var users struct {
		Users []struct {
			Email string     `json:"email"`
			Role  model.Role `json:"role"`
		} `json:"users"`
		Pagination pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users.Users, 2)
	assert.Equal(t, "admin@example.com", users.Users[0].Email)
	assert.Equal(t, pagination{Page: 1, Limit: 2, Total: 3, Pages: 2}, users.Pagination)
}
