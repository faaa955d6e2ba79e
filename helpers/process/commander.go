package process

import (
	"io"
	"os"
	"os/exec"
	"syscall"
)

//go:generate mockery --name=Commander --inpackage --with-expecter=false
type Commander interface {
	Start() error
	Wait() error
	Process() *os.Process
}

type CommandOptions struct {
	Dir string
	Env []string

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// Credential runs the command as another user when set
	Credential *Credential
}

type osCmd struct {
	internal *exec.Cmd
	options  CommandOptions
}

// NewOSCmd creates a new implementation of Commander using the os.Cmd from
// os/exec.
func NewOSCmd(executable string, args []string, options CommandOptions) Commander {
	c := exec.Command(executable, args...)
	c.Dir = options.Dir
	c.Env = options.Env
	c.Stdin = options.Stdin
	c.Stdout = options.Stdout
	c.Stderr = options.Stderr

	return &osCmd{
		internal: c,
		options:  options,
	}
}

func (c *osCmd) Start() error {
	if c.internal.SysProcAttr == nil {
		c.internal.SysProcAttr = &syscall.SysProcAttr{}
	}

	// the command gets its own process group so that everything it spawns
	// can be signalled at once
	c.internal.SysProcAttr.Setpgid = true

	if c.options.Credential != nil && !c.options.Credential.isCurrent() {
		c.internal.SysProcAttr.Credential = &syscall.Credential{
			Uid: c.options.Credential.UID,
			Gid: c.options.Credential.GID,
		}
	}

	return c.internal.Start()
}

func (c *osCmd) Wait() error {
	return c.internal.Wait()
}

func (c *osCmd) Process() *os.Process {
	return c.internal.Process
}
