// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package restart

import "syscall"

// detachedAttr puts the helper in its own session so it survives our exit.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
