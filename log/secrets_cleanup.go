package log

import (
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	url_helpers "gitlab.com/gitlab-org/runner-pool/helpers/url"
)

var (
	runnerTokenRegexp = regexp.MustCompile(`glrt-[0-9A-Za-z_\-.]+`)
	tokenFlagRegexp   = regexp.MustCompile(`(--(?:token|jitconfig)[= ])\S+`)
)

// sensitiveFields are log fields whose value is never written out
var sensitiveFields = map[string]bool{
	"token":              true,
	"registration_token": true,
	"jit_config":         true,
	"private_token":      true,
}

func ScrubSecrets(message string) string {
	message = url_helpers.ScrubSecrets(message)
	message = runnerTokenRegexp.ReplaceAllString(message, "glrt-[FILTERED]")
	return tokenFlagRegexp.ReplaceAllString(message, "${1}[FILTERED]")
}

type SecretsCleanupHook struct{}

func (s *SecretsCleanupHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *SecretsCleanupHook) Fire(entry *logrus.Entry) error {
	entry.Message = ScrubSecrets(entry.Message)

	for key, value := range entry.Data {
		if sensitiveFields[key] {
			entry.Data[key] = "[FILTERED]"
			continue
		}

		switch v := value.(type) {
		case string:
			entry.Data[key] = ScrubSecrets(v)
		case error:
			entry.Data[key] = ScrubSecrets(fmt.Sprint(v))
		}
	}

	return nil
}

func AddSecretsCleanupLogHook(logger *logrus.Logger) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	for _, hook := range logger.Hooks[logrus.InfoLevel] {
		if _, ok := hook.(*SecretsCleanupHook); ok {
			return
		}
	}

	logger.AddHook(new(SecretsCleanupHook))
}
