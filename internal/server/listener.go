package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ErrNoAvailablePort はすべてのポート候補でバインドに失敗した場合のエラー
var ErrNoAvailablePort = errors.New("no candidate port could be bound")

// Acquirer は優先ポートとフォールバックポートを順に試してリスナーを確保する
type Acquirer struct {
	Host   string // 空なら全インターフェース
	Logger logrus.FieldLogger

	// listen はテストで差し替えられる
	listen func(ctx context.Context, network, address string) (net.Listener, error)
}

// NewAcquirer は新しい Acquirer を作成する
func NewAcquirer(host string, logger logrus.FieldLogger) *Acquirer {
	var lc net.ListenConfig
	return &Acquirer{
		Host:   host,
		Logger: logger,
		listen: lc.Listen,
	}
}

// Acquire は preferred、fallbacks の順にバインドを試し、最初に成功したリスナーを返す
//
// 使用中のポートは警告として、それ以外のバインドエラーはエラーとして
// 1候補につき1行ずつ記録し、次の候補へ進む。
// すべて失敗した場合は ErrNoAvailablePort を返す
func (a *Acquirer) Acquire(ctx context.Context, preferred int, fallbacks []int) (net.Listener, error) {
	ln, err := a.try(ctx, preferred)
	if err == nil {
		return ln, nil
	}

	for _, port := range fallbacks {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.Logger.Infof("Trying fallback port %d...", port)
		ln, err = a.try(ctx, port)
		if err == nil {
			return ln, nil
		}
	}

	a.Logger.Error("Failed to start server on any port. Please check if another process is using these ports.")
	return nil, ErrNoAvailablePort
}

func (a *Acquirer) try(ctx context.Context, port int) (net.Listener, error) {
	addr := net.JoinHostPort(a.Host, strconv.Itoa(port))
	ln, err := a.listen(ctx, "tcp", addr)
	if err != nil {
		if isAddrInUse(err) {
			a.Logger.Warnf("Port %d is already in use", port)
		} else {
			a.Logger.Errorf("Error starting server on port %d: %v", port, err)
		}
		return nil, fmt.Errorf("ポート %d のバインドに失敗: %w", port, err)
	}
	return ln, nil
}

// ListenerPort はリスナーの実際のポート番号を返す
func ListenerPort(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	_, p, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(p)
	return port
}
