package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"audiolib/cache"
	"audiolib/storage"
)

// cutBody serves data until limit bytes went out, then calls onCut (if set)
// and fails every further Read with err.
type cutBody struct {
	data   []byte
	limit  int
	sent   int
	err    error
	onCut  func()
	closes *atomic.Int32
}

func (b *cutBody) Read(p []byte) (int, error) {
	if b.sent >= b.limit {
		if b.onCut != nil {
			b.onCut()
			b.onCut = nil
		}
		return 0, b.err
	}
	n := copy(p, b.data[b.sent:b.limit])
	b.sent += n
	return n, nil
}

func (b *cutBody) Close() error {
	b.closes.Add(1)
	return nil
}

// cutAssets opens every asset as a cutBody over the real bytes.
type cutAssets struct {
	*storage.LocalStore
	limit  int
	err    error
	onCut  func()
	closes atomic.Int32
}

func (c *cutAssets) Open(ctx context.Context, ref string, offset, length int64) (io.ReadCloser, error) {
	rc, err := c.LocalStore.Open(ctx, ref, offset, length)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return &cutBody{data: data, limit: c.limit, err: c.err, onCut: c.onCut, closes: &c.closes}, nil
}

// handlerWith serves the environment's data through a different asset store.
func (e *testEnv) handlerWith(assets storage.AssetStore) http.Handler {
	api := NewAPIHandler(e.store, e.store, assets, e.tokens, cache.NewStatsCache(nil, e.store, time.Minute, 5), e.api.cfg)
	return NewRouter(api, prometheus.NewRegistry())
}

func TestStreamStorageFailsMidBody(t *testing.T) {
	for _, tc := range []struct {
		name       string
		rangeHdr   string
		wantStatus int
		wantBody   func(audio []byte) []byte
		readErr    error
	}{
		{"full read error", "", http.StatusOK, func(a []byte) []byte { return a[:300] }, errors.New("input/output error")},
		{"partial read error", "bytes=100-599", http.StatusPartialContent, func(a []byte) []byte { return a[100:400] }, errors.New("input/output error")},
		{"asset shorter than stat", "", http.StatusOK, func(a []byte) []byte { return a[:300] }, io.EOF},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)
			logs := observeLogs(t)
			assets := &cutAssets{LocalStore: e.assets, limit: 300, err: tc.readErr}
			h := e.handlerWith(assets)

			req := httptest.NewRequest(http.MethodGet, streamURL(e.public), nil)
			if tc.rangeHdr != "" {
				req.Header.Set("Range", tc.rangeHdr)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			// the status line was committed before the store failed
			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantBody(e.audio), rec.Body.Bytes())
			assert.Equal(t, int32(1), assets.closes.Load())

			entries := logs.FilterMessage("读取音频存储失败").All()
			require.Len(t, entries, 1)
			assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
			assert.Equal(t, int64(300), entries[0].ContextMap()["sent"])
		})
	}
}

func TestStreamClientCancelsMidBody(t *testing.T) {
	e := newTestEnv(t)
	logs := observeLogs(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assets := &cutAssets{LocalStore: e.assets, limit: 200, err: context.Canceled, onCut: cancel}
	h := e.handlerWith(assets)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, streamURL(e.public), nil).WithContext(ctx))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, e.audio[:200], rec.Body.Bytes())
	assert.Equal(t, int32(1), assets.closes.Load())

	entries := logs.FilterMessage("客户端中断音频流").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

// failingWriter accepts limit body bytes and then fails like a closed socket.
type failingWriter struct {
	*httptest.ResponseRecorder
	limit int
}

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.Body.Len()+len(p) > f.limit {
		return 0, errors.New("write: broken pipe")
	}
	return f.ResponseRecorder.Write(p)
}

func TestStreamClientWriteFails(t *testing.T) {
	e := newTestEnv(t)
	logs := observeLogs(t)
	assets := &cutAssets{LocalStore: e.assets, limit: len(e.audio), err: io.EOF}
	h := e.handlerWith(assets)

	w := &failingWriter{ResponseRecorder: httptest.NewRecorder(), limit: 10}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, streamURL(e.public), nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), assets.closes.Load())
	entries := logs.FilterMessage("音频流写入失败").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "a gone client is not a storage fault")
}
