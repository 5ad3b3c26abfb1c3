package static

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithContentTypes(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.WriteHeader(http.StatusOK)
	})
	h := withContentTypes(map[string]string{".js": "text/javascript"}, inner)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"拡張子が一致", "/app.js", "text/javascript"},
		{"大文字の拡張子", "/APP.JS", "text/javascript"},
		{"対象外の拡張子", "/style.css", "application/octet-stream"},
		{"拡張子なし", "/README", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Header().Get("Content-Type"))
		})
	}

	t.Run("空のマップならそのまま返す", func(t *testing.T) {
		got := withContentTypes(nil, inner)
		rec := httptest.NewRecorder()
		got.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	})
}

func TestWithIndexFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "index.html"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>home</html>"), 0o644))

	var fallback int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fallback, 1)
		http.NotFound(w, r)
	})
	h := withIndexFile(http.Dir(root), next)

	t.Run("index.htmlをリダイレクトせずに返す", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "<html>home</html>", rec.Body.String())
		assert.Empty(t, rec.Header().Get("Location"))
	})

	t.Run("存在しないindex.htmlは次のハンドラへ", func(t *testing.T) {
		atomic.StoreInt32(&fallback, 0)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing/index.html", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, int32(1), atomic.LoadInt32(&fallback))
	})

	t.Run("index.htmlという名前のディレクトリは次のハンドラへ", func(t *testing.T) {
		atomic.StoreInt32(&fallback, 0)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sub/index.html", nil))

		assert.Equal(t, int32(1), atomic.LoadInt32(&fallback))
	})

	t.Run("他のパスは次のハンドラへ", func(t *testing.T) {
		atomic.StoreInt32(&fallback, 0)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other.html", nil))

		assert.Equal(t, int32(1), atomic.LoadInt32(&fallback))
	})
}

func TestSerialize(t *testing.T) {
	q := newSerialQueue()
	defer q.stop()

	var active, maxActive int32
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		w.WriteHeader(http.StatusNoContent)
	})
	h := serialize(q, inner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestSerialize_StoppedQueue(t *testing.T) {
	q := newSerialQueue()
	q.stop()

	called := false
	h := serialize(q, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, called)
}

func TestSerialize_PanicRaisedOnCaller(t *testing.T) {
	q := newSerialQueue()
	defer q.stop()

	h := serialize(q, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})

	t.Run("panic後もワーカーは処理を続ける", func(t *testing.T) {
		ok := serialize(q, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		rec := httptest.NewRecorder()
		ok.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestSerialQueue_StopConcurrentWithRun(t *testing.T) {
	q := newSerialQueue()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() {
				err := q.run(func() {})
				if err != nil {
					assert.ErrorIs(t, err, errQueueStopped)
				}
			})
		}()
	}

	q.stop()
	wg.Wait()

	assert.ErrorIs(t, q.run(func() {}), errQueueStopped)
	assert.NotPanics(t, q.stop)
}

// readerFromWriter は ReadFrom の呼び出しを記録する
type readerFromWriter struct {
	*httptest.ResponseRecorder
	readFromCalls int
}

func (w *readerFromWriter) ReadFrom(src io.Reader) (int64, error) {
	w.readFromCalls++
	return io.Copy(w.ResponseRecorder, src)
}

func TestStatusRecorder_ReadFrom(t *testing.T) {
	t.Run("下位のReaderFromに委譲する", func(t *testing.T) {
		inner := &readerFromWriter{ResponseRecorder: httptest.NewRecorder()}
		rec := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}

		n, err := rec.ReadFrom(strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, 1, inner.readFromCalls)
		assert.Equal(t, "hello", inner.Body.String())
	})

	t.Run("ReaderFromでなければコピーする", func(t *testing.T) {
		inner := httptest.NewRecorder()
		rec := &statusRecorder{ResponseWriter: inner, status: http.StatusOK}

		n, err := rec.ReadFrom(strings.NewReader("hello"))
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, "hello", inner.Body.String())
	})

	t.Run("io.ReaderFromを実装している", func(t *testing.T) {
		var w http.ResponseWriter = &statusRecorder{ResponseWriter: httptest.NewRecorder()}
		_, ok := w.(io.ReaderFrom)
		assert.True(t, ok)
	})
}

func TestWithAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := withAccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.txt", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "request served")
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "method=GET")
	assert.Contains(t, out, "path=/missing.txt")
	assert.Contains(t, out, "status=404")
}

func TestWithAccessLog_WarnLevelSuppresses(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	h := withAccessLog(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, buf.String())
}
