//go:build unix

package server

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isAddrInUse はバインドエラーが「アドレス使用中」かどうかを返す
func isAddrInUse(err error) bool {
	return errors.Is(err, unix.EADDRINUSE)
}
