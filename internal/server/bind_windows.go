//go:build windows

package server

import (
	"errors"

	"golang.org/x/sys/windows"
)

// isAddrInUse はバインドエラーが「アドレス使用中」かどうかを返す
func isAddrInUse(err error) bool {
	return errors.Is(err, windows.WSAEADDRINUSE)
}
