//go:build windows

package process

import "os/exec"

func startPTY(cmd *exec.Cmd, spec Spec) (Handle, error) {
	return nil, ErrPTYUnavailable
}
