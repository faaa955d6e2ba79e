//go:build !integration

package commands

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli"
)

func newServiceContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()

	set := flag.NewFlagSet("install", flag.ContinueOnError)
	set.String("service", defaultServiceName, "")
	set.String("working-directory", "", "")
	set.String("config", "", "")
	set.String("user", "", "")
	set.Bool("syslog", false, "")

	assert.NoError(t, set.Parse(args))

	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestGetServiceArguments(t *testing.T) {
	c := newServiceContext(t,
		"--working-directory", "/srv/pool",
		"--config", "/etc/runner-pool/config.toml",
		"--syslog=false",
	)

	assert.Equal(t, []string{
		"--working-directory", "/srv/pool",
		"--config", "/etc/runner-pool/config.toml",
		"--service", defaultServiceName,
	}, GetServiceArguments(c))
}

func TestCreateServiceConfig(t *testing.T) {
	c := newServiceContext(t, "--service", "pool-a", "--user", "pool", "--syslog=false")

	config := createServiceConfig(c)
	assert.Equal(t, "pool-a", config.Name)
	assert.Equal(t, "pool-a", config.DisplayName)
	assert.Equal(t, "pool", config.UserName)
	assert.Equal(t, []string{"run", "--service", "pool-a"}, config.Arguments)
}
