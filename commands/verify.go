package commands

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/helpers/retry"
	"gitlab.com/gitlab-org/runner-pool/network"
)

const (
	verifyMaxTries   = 3
	verifyMinBackoff = time.Second
	verifyMaxBackoff = 5 * time.Second
)

// VerifyCommand loads the config and checks that every platform is
// reachable and recent enough.
type VerifyCommand struct {
	configOptions

	Platform string `short:"p" long:"platform" description:"Name of the platform you wish to verify"`

	newPlatform func(config *common.PlatformConfig) (common.Platform, error)
	minBackoff  time.Duration
	maxBackoff  time.Duration
}

func (c *VerifyCommand) Execute(_ *cli.Context) {
	if err := c.loadConfig(); err != nil {
		logrus.Fatalln(err)
	}

	if err := c.verify(context.Background()); err != nil {
		logrus.Fatalln(err)
	}

	logrus.Println("Config", c.ConfigFile, "is valid")
}

func (c *VerifyCommand) verify(ctx context.Context) error {
	newPlatform := c.newPlatform
	if newPlatform == nil {
		platforms := network.NewPlatforms(network.NewAPIRequestsCollector(), logrus.StandardLogger())
		newPlatform = platforms.Get
	}

	failed := false
	verified := 0

	for _, config := range c.getConfig().Platforms {
		if c.Platform != "" && config.Name != c.Platform {
			continue
		}
		verified++

		logger := logrus.WithFields(logrus.Fields{
			"platform": config.Name,
			"type":     config.Type,
			"url":      config.URL,
		})

		platform, err := newPlatform(config)
		if err != nil {
			logger.WithError(err).Errorln("Creating platform client failed")
			failed = true
			continue
		}

		v, err := c.checkVersion(ctx, logger, platform)
		if err != nil {
			logger.WithError(err).Errorln("Verifying platform failed")
			failed = true
			continue
		}

		if v != nil {
			logger = logger.WithField("version", v.String())
		}
		logger.Println("Verifying platform... is valid")
	}

	switch {
	case c.Platform != "" && verified == 0:
		return errors.New("no platform matches the filtering parameters")
	case failed:
		return errors.New("failed to verify platforms")
	}

	return nil
}

// checkVersion retries transient failures. A platform that is too old
// fails right away.
func (c *VerifyCommand) checkVersion(ctx context.Context, logger logrus.FieldLogger, platform common.Platform) (*version.Version, error) {
	minBackoff, maxBackoff := verifyMinBackoff, verifyMaxBackoff
	if c.minBackoff > 0 {
		minBackoff, maxBackoff = c.minBackoff, c.maxBackoff
	}

	return retry.NewWithValue(func(ctx context.Context) (*version.Version, error) {
		checkCtx, cancel := context.WithTimeout(ctx, common.DefaultNetworkClientTimeout)
		defer cancel()

		return network.CheckVersion(checkCtx, platform)
	}).
		WithCheck(func(_ int, err error) bool {
			return !errors.Is(err, network.ErrUnsupportedVersion)
		}).
		WithMaxTries(verifyMaxTries).
		WithBackoff(minBackoff, maxBackoff).
		WithLogrus(logger).
		RunValue(ctx)
}

func init() {
	common.RegisterCommand("verify", "verify the config and the configured platforms", &VerifyCommand{})
}
