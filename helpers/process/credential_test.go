//go:build !integration

package process

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialIsCurrent(t *testing.T) {
	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())

	tests := map[string]struct {
		credential Credential
		expected   bool
	}{
		"current identity": {
			credential: Credential{UID: uid, GID: gid},
			expected:   true,
		},
		"other user": {
			credential: Credential{UID: uid + 1, GID: gid},
		},
		"other group": {
			credential: Credential{UID: uid, GID: gid + 1},
		},
	}

	for tn, tc := range tests {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.credential.isCurrent())
		})
	}
}
