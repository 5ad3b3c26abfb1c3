package opener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultRelPath はホームディレクトリからの既定の対象ファイル
var DefaultRelPath = filepath.Join("Documents", "RitualGrimoire-Stellar_Shield", "web_ui", "index.html")

// Options configures an Opener.
type Options struct {
	HomeDir  func() (string, error)
	RelPath  string
	Launcher Launcher
	Out      io.Writer
}

// DefaultOptions returns options targeting DefaultRelPath with the platform
// launcher, reporting to stdout.
func DefaultOptions() Options {
	return Options{
		HomeDir:  os.UserHomeDir,
		RelPath:  DefaultRelPath,
		Launcher: PlatformLauncher(),
		Out:      os.Stdout,
	}
}

type Opener struct {
	opts Options
}

func New(opts Options) *Opener {
	if opts.HomeDir == nil {
		opts.HomeDir = os.UserHomeDir
	}
	if opts.Launcher == nil {
		opts.Launcher = PlatformLauncher()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Opener{opts: opts}
}

// Path はホームディレクトリ配下の対象パスを返す
func (o *Opener) Path() (string, error) {
	home, err := o.opts.HomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, o.opts.RelPath), nil
}

// Run は対象ファイルが存在すればLauncherで開く。
// 存在しない場合はその旨を出力するだけでエラーにはしない。
func (o *Opener) Run(ctx context.Context) error {
	path, err := o.Path()
	if err != nil {
		return err
	}

	fmt.Fprintln(o.opts.Out, "Looking for:", path)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(o.opts.Out, filepath.Base(path), "not found at:", path)
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	fmt.Fprintln(o.opts.Out, "Found it! Opening with the default application...")

	return o.opts.Launcher.Open(ctx, path)
}
