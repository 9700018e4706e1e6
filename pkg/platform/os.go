// SPDX-License-Identifier: MPL-2.0

package platform

// GOOS values upkit selects helper flavors and config locations by.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)
