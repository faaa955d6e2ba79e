//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package log

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
)

const stackDumpBufferSize = 1 << 20

// watchForGoroutinesDump logs the stacks of all goroutines on SIGUSR1.
func watchForGoroutinesDump(logger logrus.FieldLogger, stopCh chan bool) {
	dumpStacks := make(chan os.Signal, 1)
	signal.Notify(dumpStacks, syscall.SIGUSR1)
	defer signal.Stop(dumpStacks)

	for {
		select {
		case <-dumpStacks:
			logger.WithField("goroutines", runtime.NumGoroutine()).
				Printf("=== received SIGUSR1 ===\n*** goroutine dump...\n%s\n*** end\n", stacks())
		case <-stopCh:
			return
		}
	}
}

func stacks() []byte {
	buf := make([]byte, stackDumpBufferSize)
	n := runtime.Stack(buf, true)

	return buf[:n]
}
