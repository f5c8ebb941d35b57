//go:build windows

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
