package static

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
)

var (
	// ErrRootNotDirectory は配信ルートがディレクトリでない場合に返される
	ErrRootNotDirectory = errors.New("root is not a directory")
	// ErrNotListening はListen前にアドレスを参照した場合に返される
	ErrNotListening = errors.New("server is not listening")
)

// Options configures a Server.
type Options struct {
	Host string
	Port int
	Root string
	// ContentTypes maps a file extension (with the leading dot) to the
	// Content-Type served for it, overriding MIME inference.
	ContentTypes      map[string]string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	Logger            *slog.Logger
}

// DefaultOptions returns options serving the current directory on loopback.
// .js is served as text/javascript because some mobile Safari versions
// refuse module scripts with other types.
func DefaultOptions() Options {
	return Options{
		Host: "127.0.0.1",
		Root: ".",
		ContentTypes: map[string]string{
			".js": "text/javascript",
		},
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Server serves a single directory over HTTP. It owns its listener from
// Listen until Serve returns.
type Server struct {
	opts       Options
	root       string
	logger     *slog.Logger
	queue      *serialQueue
	handler    http.Handler
	listener   net.Listener
	httpServer *http.Server
}

// New はルートディレクトリを解決してServerを生成する
func New(opts Options) (*Server, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", opts.Root, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultOptions().ShutdownTimeout
	}

	contentTypes := lo.MapKeys(opts.ContentTypes, func(_ string, ext string) string {
		return strings.ToLower(ext)
	})

	queue := newSerialQueue()
	dir := http.Dir(root)

	var h http.Handler = http.FileServer(dir)
	h = withIndexFile(dir, h)
	h = withContentTypes(contentTypes, h)
	h = serialize(queue, h)
	h = withAccessLog(logger, h)

	return &Server{
		opts:    opts,
		root:    root,
		logger:  logger,
		queue:   queue,
		handler: h,
	}, nil
}

// Root returns the absolute directory being served.
func (s *Server) Root() string {
	return s.root
}

// Handler returns the request handler, usable without a listener.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound address.
func (s *Server) Addr() (net.Addr, error) {
	if s.listener == nil {
		return nil, ErrNotListening
	}
	return s.listener.Addr(), nil
}

// URL returns the base URL of the bound listener.
func (s *Server) URL() (string, error) {
	addr, err := s.Addr()
	if err != nil {
		return "", err
	}
	return "http://" + addr.String(), nil
}

// Listen はアドレス再利用を有効にしたソケットでbindする
func (s *Server) Listen(ctx context.Context) error {
	if s.listener != nil {
		return nil
	}

	lc := net.ListenConfig{Control: s.control}
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))

	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.listener = ln
	return nil
}

// control applies the reuse options. Failures are logged and ignored so the
// bind falls back to the platform default behaviour.
func (s *Server) control(_, address string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		if err := setReuseAddr(fd); err != nil {
			s.logger.Debug("SO_REUSEADDR not applied", slog.String("addr", address), "error", err)
		}

		if !reusePortSupported {
			s.logger.Debug("SO_REUSEPORT unsupported on this platform", slog.String("addr", address))
			return
		}

		if err := setReusePort(fd); err != nil {
			s.logger.Debug("SO_REUSEPORT not applied", slog.String("addr", address), "error", err)
		}
	})
}

// Serve はctxがキャンセルされるまでリクエストを処理する。
// キャンセル時は新規接続の受付を止め、リスナーを解放してnilを返す。
func (s *Server) Serve(ctx context.Context) error {
	defer s.queue.stop()

	if err := s.Listen(ctx); err != nil {
		return err
	}

	ln := s.listener
	defer ln.Close()

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Debug("shutting down server", slog.String("addr", ln.Addr().String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown timed out", "error", err)
		if err := s.httpServer.Close(); err != nil {
			s.logger.Debug("force close failed", "error", err)
		}
	}

	<-errCh
	return nil
}
