//go:build !windows

package render

import "os/exec"

func hideWindow(cmd *exec.Cmd) {}
