//go:build !windows

package pidfile

import "syscall"

// alive sends signal 0, which checks existence without delivering anything.
func alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}
