package static

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/HMasataka/logging"
	"github.com/gammazero/workerpool"
)

const indexPage = "/index.html"

// statusRecorder はレスポンスのステータスコードを記録する
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// ReadFrom keeps the sendfile path of the underlying writer reachable.
func (r *statusRecorder) ReadFrom(src io.Reader) (int64, error) {
	if rf, ok := r.ResponseWriter.(io.ReaderFrom); ok {
		return rf.ReadFrom(src)
	}
	return io.Copy(r.ResponseWriter, src)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withContentTypes overrides the inferred Content-Type for the configured
// extensions. http.FileServer keeps a Content-Type that is already set.
func withContentTypes(types map[string]string, next http.Handler) http.Handler {
	if len(types) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext := strings.ToLower(path.Ext(r.URL.Path))
		if ct, ok := types[ext]; ok {
			w.Header().Set("Content-Type", ct)
		}
		next.ServeHTTP(w, r)
	})
}

// withIndexFile は .../index.html へのリクエストをリダイレクトせずにそのまま返す。
// http.FileServer は index.html をディレクトリへリダイレクトするため。
func withIndexFile(root http.FileSystem, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, indexPage) {
			next.ServeHTTP(w, r)
			return
		}

		f, err := root.Open(path.Clean(r.URL.Path))
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			next.ServeHTTP(w, r)
			return
		}

		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

var errQueueStopped = errors.New("request queue stopped")

// serialQueue runs one task at a time on a single worker. stop and run share
// mu so no task is submitted after the pool's queue is closed.
type serialQueue struct {
	mu      sync.RWMutex
	pool    *workerpool.WorkerPool
	stopped bool
}

func newSerialQueue() *serialQueue {
	return &serialQueue{pool: workerpool.New(1)}
}

// run はfnをワーカー上で実行し、完了まで待つ。fnのpanicは呼び出し側のgoroutineで再送出する。
func (q *serialQueue) run(fn func()) error {
	done := make(chan struct{})
	var recovered any

	q.mu.RLock()
	if q.stopped {
		q.mu.RUnlock()
		return errQueueStopped
	}
	q.pool.Submit(func() {
		defer close(done)
		defer func() {
			recovered = recover()
		}()
		fn()
	})
	q.mu.RUnlock()

	<-done

	if recovered != nil {
		panic(recovered)
	}
	return nil
}

// stop waits for queued tasks and rejects new ones.
func (q *serialQueue) stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.pool.StopWait()
}

// serialize はすべてのリクエストを単一ワーカーで処理し、同時に1件だけ実行する
func serialize(q *serialQueue, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := q.run(func() {
			next.ServeHTTP(w, r)
		})
		if err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}

func withAccessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx := logging.WithValue(r.Context(), "remote_addr", r.RemoteAddr)
		ctx = logging.WithValue(ctx, "method", r.Method)
		ctx = logging.WithValue(ctx, "path", r.URL.Path)
		r = r.WithContext(ctx)

		next.ServeHTTP(rec, r)

		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		}

		if logging.HasLoggingContext(ctx) {
			logger.InfoContext(ctx, "request served", attrs...)
			return
		}
		logger.DebugContext(ctx, "request served", attrs...)
	})
}
