package cli_helpers

import (
	"os"
	"runtime"
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"gitlab.com/gitlab-org/runner-pool/common"
)

// commands whose output is consumed by something else and must stay quiet
var quietCommands = []string{"agent", "list"}

func LogRuntimePlatform(app *cli.App) {
	appBefore := app.Before
	app.Before = func(c *cli.Context) error {
		if !slices.Contains(quietCommands, c.Args().First()) {
			logrus.WithFields(logrus.Fields{
				"name":     common.AppVersion.Name,
				"os":       runtime.GOOS,
				"arch":     runtime.GOARCH,
				"version":  common.VERSION,
				"revision": common.REVISION,
				"pid":      os.Getpid(),
			}).Info("Runtime platform")
		}

		if appBefore != nil {
			return appBefore(c)
		}
		return nil
	}
}
