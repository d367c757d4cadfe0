//go:build unix

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // New process group
		Pgid:    0,    // Process becomes its own group leader
	}
}

// terminate sends SIGTERM to the attempt's process group.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func decodeWaitStatus(pid int, state *os.ProcessState) (*Exit, bool) {
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return nil, false
	}

	switch {
	case status.Exited():
		code := status.ExitStatus()
		reason := ExitReasonError
		if code == 0 {
			reason = ExitReasonSuccess
		}
		return &Exit{PID: pid, Code: code, Reason: reason}, true
	case status.Signaled():
		sig := status.Signal()
		// Shell convention: 128 + signal number
		return &Exit{PID: pid, Code: 128 + int(sig), Signal: SignalName(sig), Reason: ExitReasonSignal}, true
	default:
		return nil, false
	}
}

// SignalName returns human-readable signal name
func SignalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	default:
		return fmt.Sprintf("SIG%d", int(sig))
	}
}
