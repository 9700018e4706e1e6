// SPDX-License-Identifier: MPL-2.0

package platform

import "strings"

// reservedDeviceNames cannot be used as file names on Windows, with or
// without an extension.
var reservedDeviceNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// IsReservedFileName reports whether Windows would map name to a device.
// Everything from the first dot on is ignored, so "nul.tar.gz" is reserved.
func IsReservedFileName(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	stem = strings.TrimRight(stem, " ")
	_, ok := reservedDeviceNames[strings.ToUpper(stem)]
	return ok
}
