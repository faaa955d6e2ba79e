package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-version"

	"gitlab.com/gitlab-org/runner-pool/common"
)

var (
	minimumGitLabVersion = version.Must(version.NewVersion("15.10.0"))
	minimumGiteaVersion  = version.Must(version.NewVersion("1.21.0"))
	minimumGHESVersion   = version.Must(version.NewVersion("3.10.0"))
)

// ErrUnsupportedVersion is returned when a platform runs a version that is
// too old for the pool.
var ErrUnsupportedVersion = errors.New("unsupported platform version")

// VersionChecker is implemented by platform clients that can report the
// version of the server they talk to.
type VersionChecker interface {
	// Version returns nil without an error for versionless services such
	// as github.com.
	Version(ctx context.Context) (*version.Version, error)
	MinimumVersion() *version.Version
}

// CheckVersion verifies that platform runs a version providing every API
// the pool relies on. Platforms without version reporting always pass.
func CheckVersion(ctx context.Context, platform common.Platform) (*version.Version, error) {
	checker, ok := platform.(VersionChecker)
	if !ok {
		return nil, nil
	}

	v, err := checker.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking %s version: %w", platform.Name(), err)
	}
	if v == nil {
		return nil, nil
	}

	if v.Core().LessThan(checker.MinimumVersion()) {
		return v, fmt.Errorf("%w: %s runs version %s, at least %s is required", ErrUnsupportedVersion, platform.Name(), v, checker.MinimumVersion())
	}

	return v, nil
}

type versionResponse struct {
	Version string `json:"version"`
}

func parseVersion(raw string) (*version.Version, error) {
	v, err := version.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing version %q: %w", raw, err)
	}

	return v, nil
}
