//go:build !integration

package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSecretsCleanupHook(t *testing.T) {
	tests := map[string]struct {
		message  string
		expected string
	}{
		"query token": {
			message:  "Get http://localhost/?id=123&private_token=abcd1234",
			expected: "Get http://localhost/?id=123&private_token=[FILTERED]",
		},
		"runner token": {
			message:  "registered runner with token glrt-t9Wkyj-HGRkqQ-VWTGAr",
			expected: "registered runner with token glrt-[FILTERED]",
		},
		"token flag": {
			message:  "exec gitlab-runner run-single --token glrt-abc --url https://gitlab.com",
			expected: "exec gitlab-runner run-single --token [FILTERED] --url https://gitlab.com",
		},
		"jitconfig flag": {
			message:  "exec run.sh --jitconfig=ZXlKaGJHY2lPaUpJVXpJMU5pSjk",
			expected: "exec run.sh --jitconfig=[FILTERED]",
		},
		"no secrets": {
			message:  "Fatal: Get http://localhost/?id=123",
			expected: "Fatal: Get http://localhost/?id=123",
		},
	}

	for tn, tt := range tests {
		t.Run(tn, func(t *testing.T) {
			buffer := &bytes.Buffer{}

			logger := logrus.New()
			logger.Out = buffer
			AddSecretsCleanupLogHook(logger)

			logger.Errorln(tt.message)

			assert.Contains(t, buffer.String(), tt.expected)
		})
	}
}

func TestSecretsCleanupHookFields(t *testing.T) {
	buffer := &bytes.Buffer{}

	logger := logrus.New()
	logger.Out = buffer
	logger.Formatter = &logrus.TextFormatter{DisableColors: true, DisableQuote: true}
	AddSecretsCleanupLogHook(logger)
	AddSecretsCleanupLogHook(logger)

	assert.Len(t, logger.Hooks[logrus.InfoLevel], 1, "hook should be added only once")

	logger.
		WithField("token", "glrt-secret").
		WithField("url", "https://gitlab.com/?private_token=abc").
		WithError(errors.New("request with glrt-abcdef failed")).
		Info("message")

	output := buffer.String()
	assert.NotContains(t, output, "glrt-secret")
	assert.NotContains(t, output, "glrt-abcdef")
	assert.NotContains(t, output, "private_token=abc")
	assert.Contains(t, output, "token=[FILTERED]")
}
