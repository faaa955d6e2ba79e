package service_helpers

import (
	"errors"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
)

// New returns the service of the detected service manager, or a
// SimpleService running in the foreground when there is none.
func New(i service.Interface, c *service.Config) (service.Service, error) {
	s, err := service.New(i, c)
	if errors.Is(err, service.ErrNoServiceSystemDetected) {
		logrus.Warningln("No service system detected. Some features may not work!")

		return &SimpleService{
			i: i,
			c: c,
		}, nil
	}
	return s, err
}
