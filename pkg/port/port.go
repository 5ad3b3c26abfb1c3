package port

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/samber/lo"
)

var (
	// ErrNoFreePort は探索範囲のすべてのポートがbindできなかった場合に返される
	ErrNoFreePort = errors.New("no free port found")
	// ErrInvalidRange は探索範囲が不正な場合に返される
	ErrInvalidRange = errors.New("invalid port range")
)

const (
	minPort = 1
	maxPort = 65535
)

// Prober はアドレスがbind可能かどうかを確認する
type Prober interface {
	// Probe はaddrへのbindを試み、成功した場合は即座に解放してnilを返す
	Probe(ctx context.Context, addr string) error
}

// ListenProber はTCPのlistenで実際にbindを試すProber
type ListenProber struct{}

// Probe implements Prober.
func (ListenProber) Probe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

// Options はポート探索の設定を保持する
type Options struct {
	Host   string
	Start  int
	Count  int
	Prober Prober
}

// DefaultOptions はデフォルトの探索設定を返す
func DefaultOptions() Options {
	return Options{
		Host:   "127.0.0.1",
		Start:  8000,
		Count:  50,
		Prober: ListenProber{},
	}
}

// Candidates は探索対象のポートを昇順で返す
func (o Options) Candidates() ([]int, error) {
	if o.Count <= 0 || o.Start < minPort || o.Start+o.Count-1 > maxPort {
		return nil, fmt.Errorf("%w: start=%d count=%d", ErrInvalidRange, o.Start, o.Count)
	}
	return lo.RangeFrom(o.Start, o.Count), nil
}

// Find は候補ポートを昇順にbindして、最初に成功したポートを返す。
// プローブ用のソケットは返す前に閉じるため、呼び出し側が実際にbindするまでの間に
// 他のプロセスに取られる可能性がある。ローカル開発用途なのでこれは許容している。
func Find(ctx context.Context, opts Options) (int, error) {
	candidates, err := opts.Candidates()
	if err != nil {
		return 0, err
	}

	prober := opts.Prober
	if prober == nil {
		prober = ListenProber{}
	}

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		addr := net.JoinHostPort(opts.Host, strconv.Itoa(p))
		if err := prober.Probe(ctx, addr); err != nil {
			continue
		}
		return p, nil
	}

	return 0, fmt.Errorf("%w in %d-%d", ErrNoFreePort, candidates[0], candidates[len(candidates)-1])
}
