//go:build windows

package render

import (
	"os/exec"
	"syscall"
)

// hideWindow はデスクトップ運用時にコンソールウィンドウが開かないようにします。
func hideWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}
