//go:build !integration

package cli_helpers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	cli_helpers "gitlab.com/gitlab-org/runner-pool/helpers/cli"
	"gitlab.com/gitlab-org/runner-pool/log/test"
)

func TestWarnOnBool(t *testing.T) {
	tests := map[string]struct {
		args            []string
		expectedWarning string
	}{
		"no args": {
			args: []string{"runner-pool"},
		},
		"proper bool": {
			args: []string{"runner-pool", "run", "--syslog=true"},
		},
		"lone bool": {
			args:            []string{"runner-pool", "run", "--syslog", "true"},
			expectedWarning: "boolean parameters must be passed in the command line with --syslog=true",
		},
		"lone bool first": {
			args:            []string{"runner-pool", "False"},
			expectedWarning: "boolean parameters must be passed in the command line with --key=false",
		},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			hook, cleanup := test.NewHook()
			defer cleanup()

			cli_helpers.WarnOnBool(tc.args)

			if tc.expectedWarning == "" {
				assert.Empty(t, hook.Entries)
				return
			}

			if assert.Len(t, hook.Entries, 2) {
				assert.Equal(t, tc.expectedWarning, hook.Entries[0].Message)
			}
		})
	}
}
