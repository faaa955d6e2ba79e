package service_helpers

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"
)

var (
	// ErrNotSupported is returned when specific feature is not supported.
	ErrNotSupported = errors.New("not supported")
)

const optionRunWait = "RunWait"

// SimpleService runs the program in the foreground without a service
// manager.
type SimpleService struct {
	i service.Interface
	c *service.Config
}

// Run starts the program and blocks until the RunWait option returns, by
// default until SIGTERM or Interrupt. Stop is called afterwards.
func (s *SimpleService) Run() error {
	err := s.i.Start(s)
	if err != nil {
		return err
	}

	s.c.Option.FuncSingle(optionRunWait, waitForSignal)()

	return s.i.Stop(s)
}

func waitForSignal() {
	sigChan := make(chan os.Signal, 3)
	signal.Notify(sigChan, syscall.SIGTERM, os.Interrupt)
	defer signal.Stop(sigChan)

	<-sigChan
}

func (s *SimpleService) Start() error {
	return service.ErrNoServiceSystemDetected
}

func (s *SimpleService) Stop() error {
	return ErrNotSupported
}

func (s *SimpleService) Restart() error {
	return ErrNotSupported
}

func (s *SimpleService) Install() error {
	return ErrNotSupported
}

func (s *SimpleService) Uninstall() error {
	return ErrNotSupported
}

func (s *SimpleService) Status() (service.Status, error) {
	return service.StatusUnknown, ErrNotSupported
}

// Logger writes to os.Stderr, there is no system logger to open.
func (s *SimpleService) Logger(errs chan<- error) (service.Logger, error) {
	return service.ConsoleLogger, nil
}

func (s *SimpleService) SystemLogger(errs chan<- error) (service.Logger, error) {
	return nil, ErrNotSupported
}

func (s *SimpleService) String() string {
	if s.c != nil && s.c.DisplayName != "" {
		return s.c.DisplayName
	}

	return "SimpleService"
}

func (s *SimpleService) Platform() string {
	return service.Platform()
}
