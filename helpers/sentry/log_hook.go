package sentry

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"gitlab.com/gitlab-org/runner-pool/common"
	url_helpers "gitlab.com/gitlab-org/runner-pool/helpers/url"
)

const messageFlushTimeout = 10 * time.Second

// tokenFields are never forwarded as sentry tags
var tokenFields = map[string]bool{
	"token":              true,
	"registration_token": true,
	"jit_config":         true,
}

type LogHook struct {
	hub *sentrygo.Hub
}

func (s *LogHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.PanicLevel,
		logrus.FatalLevel,
		logrus.ErrorLevel,
	}
}

func sentryLevelFromLogrusLevel(logrusLevel logrus.Level) sentrygo.Level {
	if logrusLevel == logrus.PanicLevel || logrusLevel == logrus.FatalLevel {
		return sentrygo.LevelFatal
	}
	return sentrygo.LevelError
}

func (s *LogHook) Fire(entry *logrus.Entry) error {
	if s.hub == nil {
		return nil
	}

	tags := make(map[string]string)
	for key, value := range entry.Data {
		if tokenFields[key] {
			continue
		}
		tags[key] = url_helpers.ScrubSecrets(fmt.Sprint(value))
	}
	level := sentryLevelFromLogrusLevel(entry.Level)

	scope := s.hub.PushScope()
	defer s.hub.PopScope()

	scope.SetTags(tags)
	scope.SetLevel(level)

	s.hub.CaptureException(errors.New(url_helpers.ScrubSecrets(entry.Message)))
	if level == sentrygo.LevelFatal {
		s.hub.Flush(messageFlushTimeout)
	}

	return nil
}

func (s *LogHook) Flush() {
	if s.hub != nil {
		s.hub.Flush(messageFlushTimeout)
	}
}

func NewLogHook(dsn string) (lh LogHook, err error) {
	tags := make(map[string]string)
	tags["name"] = common.AppVersion.Name
	tags["built"] = common.AppVersion.BuiltAt
	tags["version"] = common.AppVersion.Version
	tags["revision"] = common.AppVersion.Revision
	tags["branch"] = common.AppVersion.Branch
	tags["go-version"] = runtime.Version()
	tags["go-os"] = runtime.GOOS
	tags["go-arch"] = runtime.GOARCH
	tags["hostname"], _ = os.Hostname()

	scope := sentrygo.NewScope()
	client, err := sentrygo.NewClient(sentrygo.ClientOptions{
		Dsn:     dsn,
		Release: common.AppVersion.Version,
	})

	if err != nil {
		return
	}

	hub := sentrygo.NewHub(client, scope)
	hub.ConfigureScope(func(scope *sentrygo.Scope) {
		scope.SetTags(tags)
	})
	lh.hub = hub

	return
}
