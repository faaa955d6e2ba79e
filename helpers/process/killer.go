package process

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrProcessNotStarted is returned when we try to manipulated/interact with a
// process that hasn't started yet (still nil).
var ErrProcessNotStarted = errors.New("process not started yet")

// GracefulTimeout is the time a Killer should wait in general to the graceful
// termination to timeout.
const GracefulTimeout = 30 * time.Second

// KillTimeout is the time a killer should wait in general for the kill command
// to finish.
const KillTimeout = 10 * time.Second

//go:generate mockery --name=killer --inpackage --with-expecter=false
type killer interface {
	Terminate()
	ForceKill()
}

var newProcessKiller = newKiller

//go:generate mockery --name=KillWaiter --inpackage --with-expecter=false
type KillWaiter interface {
	KillAndWait(command Commander, waitCh chan error) error
}

type KillProcessError struct {
	pid int
}

func (k *KillProcessError) Error() string {
	return fmt.Sprintf("failed to kill process PID=%d, likely process is dormant", k.pid)
}

func (k *KillProcessError) Is(err error) bool {
	_, ok := err.(*KillProcessError)

	return ok
}

type osKillWait struct {
	logger Logger

	gracefulKillTimeout time.Duration
	forceKillTimeout    time.Duration
}

func NewOSKillWait(logger Logger, gracefulKillTimeout, forceKillTimeout time.Duration) KillWaiter {
	return &osKillWait{
		logger:              logger,
		gracefulKillTimeout: gracefulKillTimeout,
		forceKillTimeout:    forceKillTimeout,
	}
}

// KillAndWait sends SIGTERM to the process group of command and waits for
// waitCh. When the graceful timeout runs out the group is killed, and if it
// still doesn't exit a KillProcessError is returned.
func (kw *osKillWait) KillAndWait(command Commander, waitCh chan error) error {
	process := command.Process()
	if process == nil {
		return ErrProcessNotStarted
	}

	processKiller := newProcessKiller(kw.logger.WithFields(logrus.Fields{"pid": process.Pid}), command)

	processKiller.Terminate()
	if exited, err := waitFor(waitCh, kw.gracefulKillTimeout); exited {
		return err
	}

	processKiller.ForceKill()
	if exited, err := waitFor(waitCh, kw.forceKillTimeout); exited {
		return err
	}

	return &KillProcessError{pid: process.Pid}
}

func waitFor(waitCh chan error, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		return true, err
	case <-timer.C:
		return false, nil
	}
}
