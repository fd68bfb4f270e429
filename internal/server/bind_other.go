//go:build !unix && !windows

package server

// isAddrInUse はこのプラットフォームでは判定できないため常に false を返す
func isAddrInUse(error) bool {
	return false
}
