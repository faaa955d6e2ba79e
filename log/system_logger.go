package log

import (
	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
)

// ServiceLogHook forwards log entries to the logger of the system service
// manager (journald, syslog or the Windows event log).
type ServiceLogHook struct {
	service.Logger
	Level logrus.Level
}

func (s *ServiceLogHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
	}
}

func (s *ServiceLogHook) Fire(entry *logrus.Entry) error {
	if entry.Level > s.Level {
		return nil
	}

	msg, err := entry.String()
	if err != nil {
		return err
	}

	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return s.Error(msg)
	case logrus.WarnLevel:
		return s.Warning(msg)
	case logrus.InfoLevel:
		return s.Info(msg)
	}

	return nil
}

func SetSystemLogger(logger *logrus.Logger, svc service.Service) {
	logger.SetFormatter(new(logrus.TextFormatter))

	systemLogger, err := svc.SystemLogger(nil)
	if err != nil {
		logger.WithError(err).Errorln("Couldn't open the system logger")
		return
	}

	logger.AddHook(&ServiceLogHook{Logger: systemLogger, Level: logrus.InfoLevel})
}
