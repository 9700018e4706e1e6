// SPDX-License-Identifier: MPL-2.0

//go:build windows

package restart

import "syscall"

// DETACHED_PROCESS; not exported by package syscall.
const detachedProcess = 0x00000008

// detachedAttr runs the helper with no console in its own process group.
func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
		HideWindow:    true,
	}
}
