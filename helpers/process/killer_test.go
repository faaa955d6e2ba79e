//go:build !integration

package process

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func mockKillerFactory(t *testing.T) *mockKiller {
	t.Helper()

	killerMock := newMockKiller(t)

	oldNewProcessKiller := newProcessKiller
	t.Cleanup(func() {
		newProcessKiller = oldNewProcessKiller
	})

	newProcessKiller = func(logger Logger, cmd Commander) killer {
		return killerMock
	}

	return killerMock
}

func TestOSKillWait_KillAndWait(t *testing.T) {
	testProcess := &os.Process{Pid: 1234}
	processStoppedErr := errors.New("process stopped properly")
	killProcessErr := KillProcessError{testProcess.Pid}

	tests := map[string]struct {
		process          *os.Process
		terminateProcess bool
		forceKillProcess bool
		expectedError    error
	}{
		"process is nil": {
			process:       nil,
			expectedError: ErrProcessNotStarted,
		},
		"process terminated": {
			process:          testProcess,
			terminateProcess: true,
			expectedError:    processStoppedErr,
		},
		"process force-killed": {
			process:          testProcess,
			forceKillProcess: true,
			expectedError:    processStoppedErr,
		},
		"process killing failed": {
			process:       testProcess,
			expectedError: &killProcessErr,
		},
	}

	for testName, testCase := range tests {
		t.Run(testName, func(t *testing.T) {
			waitCh := make(chan error, 1)

			loggerMock := NewMockLogger(t)
			commanderMock := NewMockCommander(t)
			commanderMock.On("Process").Return(testCase.process)

			if testCase.process != nil {
				killerMock := mockKillerFactory(t)

				loggerMock.
					On("WithFields", mock.Anything).
					Return(loggerMock)

				terminateCall := killerMock.On("Terminate")
				forceKillCall := killerMock.On("ForceKill").Maybe()

				if testCase.terminateProcess {
					terminateCall.Run(func(_ mock.Arguments) {
						waitCh <- processStoppedErr
					})
				}

				if testCase.forceKillProcess {
					forceKillCall.Run(func(_ mock.Arguments) {
						waitCh <- processStoppedErr
					})
				}
			}

			kw := NewOSKillWait(loggerMock, 100*time.Millisecond, 100*time.Millisecond)
			err := kw.KillAndWait(commanderMock, waitCh)

			assert.ErrorIs(t, err, testCase.expectedError)
		})
	}
}

func TestKillAndWaitRealProcessGroup(t *testing.T) {
	cmd := NewOSCmd("sh", []string{"-c", "sleep 60 & wait"}, CommandOptions{})
	require.NoError(t, cmd.Start())

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	kw := NewOSKillWait(NewLogrusLogger(logrus.StandardLogger()), 5*time.Second, time.Second)
	err := kw.KillAndWait(cmd, waitCh)

	var exitErr interface{ ExitCode() int }
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, -1, exitErr.ExitCode(), "process should be ended by a signal")
}

func TestNewOSCmd(t *testing.T) {
	stdout := new(bytes.Buffer)

	cmd := NewOSCmd("sh", []string{"-c", "echo $GREETING"}, CommandOptions{
		Env:    []string{"GREETING=hello"},
		Stdout: stdout,
	})
	assert.Nil(t, cmd.Process())

	require.NoError(t, cmd.Start())
	assert.NotNil(t, cmd.Process())
	require.NoError(t, cmd.Wait())

	assert.Equal(t, "hello\n", stdout.String())
}

func TestLookupCredentialUnknownUser(t *testing.T) {
	_, err := LookupCredential("no-such-user-for-runner-pool", "")
	assert.Error(t, err)
}
