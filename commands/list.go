package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"gitlab.com/gitlab-org/runner-pool/common"
	"gitlab.com/gitlab-org/runner-pool/pool"
	"gitlab.com/gitlab-org/runner-pool/server"
)

const defaultListTimeout = 10 * time.Second

var stateColors = map[pool.State]*color.Color{
	pool.StateStarting: color.New(color.FgYellow),
	pool.StateIdle:     color.New(color.FgGreen),
	pool.StateBusy:     color.New(color.FgCyan),
	pool.StateStopping: color.New(color.FgYellow),
	pool.StateFailed:   color.New(color.FgRed),
}

type ListCommand struct {
	configOptions

	Address string        `long:"address" env:"API_ADDRESS" description:"Status API of a running orchestrator, read from the config file when empty"`
	Timeout time.Duration `long:"timeout" description:"Timeout of the status API requests"`

	out io.Writer
	now func() time.Time
}

func (c *ListCommand) Execute(_ *cli.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout())
	defer cancel()

	if err := c.list(ctx, c.apiURL()); err != nil {
		logrus.WithError(err).Fatalln("Listing pools failed")
	}
}

func (c *ListCommand) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultListTimeout
	}

	return c.Timeout
}

// apiURL resolves the address the orchestrator serves its API on, a
// wildcard host is reached through loopback.
func (c *ListCommand) apiURL() string {
	address := c.Address
	if address == "" {
		address = common.DefaultAPIAddress
		if err := c.loadConfig(); err == nil {
			address = c.getConfig().GetAPIAddress()
		} else {
			logrus.WithError(err).Debugln("Using the default API address")
		}
	}

	host, port, err := net.SplitHostPort(address)
	if err == nil && (host == "" || net.ParseIP(host).IsUnspecified()) {
		address = net.JoinHostPort("127.0.0.1", port)
	}

	return "http://" + address
}

func (c *ListCommand) list(ctx context.Context, baseURL string) error {
	var pools []pool.Status
	if err := getJSON(ctx, baseURL+"/api/v1/pools", &pools); err != nil {
		return err
	}

	var runners []server.RunnerStatus
	if err := getJSON(ctx, baseURL+"/api/v1/runners", &runners); err != nil {
		return err
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}

	_, err := fmt.Fprintln(out, c.renderPools(pools))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, c.renderRunners(runners))
	return err
}

func (c *ListCommand) renderPools(pools []pool.Status) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Pool", "Platform", "Status", "Min", "Max", "Starting", "Idle", "Busy", "Stopping"})

	t.AppendRows(lo.Map(pools, func(status pool.Status, _ int) table.Row {
		state := "active"
		if status.Paused {
			state = "paused"
		}

		return table.Row{
			status.Name,
			status.Platform,
			state,
			status.MinRunners,
			status.MaxRunners,
			status.Counts.Starting,
			status.Counts.Idle,
			status.Counts.Busy,
			status.Counts.Stopping,
		}
	}))

	return t.Render()
}

func (c *ListCommand) renderRunners(runners []server.RunnerStatus) string {
	now := time.Now
	if c.now != nil {
		now = c.now
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Pool", "Runner", "State", "Instance", "Address", "Age", "Reason"})

	for _, runner := range runners {
		state := string(runner.State)
		if col, ok := stateColors[runner.State]; ok {
			state = col.Sprint(state)
		}

		t.AppendRow(table.Row{
			runner.Pool,
			runner.Name,
			state,
			runner.InstanceID,
			runner.Address,
			units.HumanDuration(now().Sub(runner.CreatedAt)),
			runner.Reason,
		})
	}

	t.AppendFooter(table.Row{"", fmt.Sprintf("%d runners", len(runners))})

	return t.Render()
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("requesting %s: %s: %s", url, resp.Status, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}

	return nil
}

func init() {
	common.RegisterCommand("list", "list the pools and runners of a running orchestrator", &ListCommand{})
}
