// SPDX-License-Identifier: MPL-2.0

// Package config loads upkit's configuration using Viper with CUE as the file format.
//
// Configuration is read from config.cue in the platform config directory
// (~/.config/upkit on Linux, ~/Library/Application Support/upkit on macOS,
// %APPDATA%\upkit on Windows), from the current directory, or from an explicit
// --config path. Files are validated against the embedded schema
// (config_schema.cue) before they are merged over the defaults; UPKIT_*
// environment variables override both.
package config
