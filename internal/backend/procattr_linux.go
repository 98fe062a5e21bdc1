package backend

import "syscall"

// The kernel kills the backend if the launcher dies without running its
// exit hook.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
