// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/upkit/upkit/cmd/upkit"

func main() {
	cmd.Execute()
}
