//go:build aix || android || darwin || dragonfly || freebsd || hurd || illumos || linux || netbsd || openbsd || solaris

package process

import (
	"golang.org/x/sys/unix"
)

type unixKiller struct {
	logger Logger
	cmd    Commander
}

func newKiller(logger Logger, cmd Commander) killer {
	return &unixKiller{
		logger: logger,
		cmd:    cmd,
	}
}

func (pk *unixKiller) Terminate() {
	if pk.cmd.Process() == nil {
		return
	}

	err := pk.signalGroup(unix.SIGTERM)
	if err != nil {
		pk.logger.Warn("Failed to terminate process:", err)

		// try to kill right-after
		pk.ForceKill()
	}
}

func (pk *unixKiller) ForceKill() {
	if pk.cmd.Process() == nil {
		return
	}

	err := pk.signalGroup(unix.SIGKILL)
	if err != nil {
		pk.logger.Warn("Failed to force-kill:", err)
	}
}

// signalGroup signals the whole process group, falling back to the process
// itself when it isn't a group leader.
func (pk *unixKiller) signalGroup(sig unix.Signal) error {
	pid := pk.cmd.Process().Pid

	pgid, err := unix.Getpgid(pid)
	if err == nil && pgid == pid {
		return unix.Kill(-pgid, sig)
	}

	return unix.Kill(pid, sig)
}
