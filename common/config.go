package common

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"

	"gitlab.com/gitlab-org/runner-pool/metadata"
)

const (
	ScopeInstance = "instance"
	ScopeGroup    = "group"
	ScopeProject  = "project"
	ScopeOrg      = "org"
	ScopeRepo     = "repo"
)

var validScopes = map[PlatformType][]string{
	PlatformGitLab: {ScopeInstance, ScopeGroup, ScopeProject},
	PlatformGitea:  {ScopeInstance, ScopeOrg, ScopeRepo},
	PlatformGitHub: {ScopeOrg, ScopeRepo},
}

type APIConfig struct {
	Address string `toml:"address,omitempty" json:"address" long:"address" env:"API_ADDRESS" description:"Address the status API listens on"`
}

type MetadataConfig struct {
	Address   string `toml:"address,omitempty" json:"address" description:"Link-local address the metadata handoff server listens on"`
	Namespace string `toml:"namespace,omitempty" json:"namespace" description:"Namespace path segment under /latest/meta-data/"`
}

type PlatformConfig struct {
	Name      string       `toml:"name" json:"name" jsonschema:"required" description:"Name referenced by pools"`
	Type      PlatformType `toml:"type" json:"type" jsonschema:"required,enum=gitlab,enum=gitea,enum=github" description:"CI platform type"`
	URL       string       `toml:"url" json:"url" jsonschema:"required" description:"Platform base URL"`
	Token     string       `toml:"token,omitempty" json:"token" description:"API token used to issue runner credentials"`
	TokenFile string       `toml:"token_file,omitempty" json:"token_file" description:"File to read the API token from"`
	TLSCAFile string       `toml:"tls_ca_file,omitempty" json:"tls_ca_file" description:"File containing the certificates to verify the peer"`

	Scope         string        `toml:"scope,omitempty" json:"scope" description:"Runner scope: instance, group, project, org or repo"`
	GroupID       int64         `toml:"group_id,omitempty" json:"group_id" description:"GitLab group id for group scoped runners"`
	ProjectID     int64         `toml:"project_id,omitempty" json:"project_id" description:"GitLab project id for project scoped runners"`
	Owner         string        `toml:"owner,omitempty" json:"owner" description:"Organization or repository owner"`
	Repo          string        `toml:"repo,omitempty" json:"repo" description:"Repository name for repo scoped runners"`
	RunnerGroupID int64         `toml:"runner_group_id,omitempty" json:"runner_group_id" description:"GitHub runner group id"`
	ExecutionMode ExecutionMode `toml:"execution_mode,omitempty" json:"execution_mode" description:"GitLab only: one-step (run-single) or two-step (register and run)"`

	QueueDepthCacheTTL *time.Duration `toml:"queue_depth_cache_ttl,omitempty" json:"queue_depth_cache_ttl,omitempty" description:"How long a queue depth estimate is reused"`
}

func (c *PlatformConfig) GetQueueDepthCacheTTL() time.Duration {
	if c.QueueDepthCacheTTL == nil {
		return DefaultQueueDepthCacheTTL
	}

	return *c.QueueDepthCacheTTL
}

func (c *PlatformConfig) GetExecutionMode() ExecutionMode {
	switch c.Type {
	case PlatformGitea:
		return ExecutionModeTwoStep
	case PlatformGitHub:
		return ExecutionModeOneStep
	}

	if c.ExecutionMode == "" {
		return ExecutionModeOneStep
	}

	return c.ExecutionMode
}

func (c *PlatformConfig) resolveToken() error {
	if c.Token != "" || c.TokenFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return fmt.Errorf("reading token file for platform %q: %w", c.Name, err)
	}

	c.Token = strings.TrimSpace(string(data))
	return nil
}

type InstanceConfig struct {
	Image      string            `toml:"image,omitempty" json:"image" description:"Root filesystem image of the instance"`
	Kernel     string            `toml:"kernel,omitempty" json:"kernel" description:"Kernel image path"`
	KernelArgs string            `toml:"kernel_args,omitempty" json:"kernel_args" description:"Kernel command line"`
	Memory     string            `toml:"memory,omitempty" json:"memory" description:"Memory size (format: <number>[<unit>])"`
	VCPUs      int               `toml:"vcpus,omitempty" json:"vcpus" description:"Number of virtual CPUs"`
	Metadata   map[string]string `toml:"metadata,omitempty" json:"metadata,omitempty" description:"Extra key-value pairs published to every instance"`
}

func (c *InstanceConfig) GetMemoryBytes() (int64, error) {
	size := c.Memory
	if size == "" {
		size = DefaultMemory
	}

	bytes, err := units.RAMInBytes(size)
	if err != nil {
		return 0, fmt.Errorf("parsing memory %q: %w", size, err)
	}

	return bytes, nil
}

type LauncherConfig struct {
	Command     string        `toml:"command,omitempty" json:"command" description:"Executable that boots one instance and exits with it"`
	Args        []string      `toml:"args,omitempty" json:"args,omitempty" description:"Arguments, expanded with instance placeholders"`
	Env         []string      `toml:"env,omitempty" json:"env,omitempty" description:"Extra KEY=value pairs passed to the launcher"`
	StateDir    string        `toml:"state_dir,omitempty" json:"state_dir" description:"Directory for per-instance state"`
	Network     string        `toml:"network,omitempty" json:"network" description:"CIDR instance addresses are allocated from"`
	StopTimeout time.Duration `toml:"stop_timeout,omitempty" json:"stop_timeout" description:"Time to wait for a launcher to exit after SIGTERM"`
}

func (c *LauncherConfig) GetStopTimeout() time.Duration {
	if c.StopTimeout <= 0 {
		return DefaultInstanceStopTimeout
	}

	return c.StopTimeout
}

type PoolConfig struct {
	Name     string   `toml:"name" json:"name" jsonschema:"required" description:"Pool name"`
	Platform string   `toml:"platform" json:"platform" description:"Name of the platform this pool registers runners with"`
	Labels   []string `toml:"labels,omitempty" json:"labels,omitempty" description:"Labels (tags) of the runners in this pool"`

	MinRunners *int `toml:"min_runners,omitempty" json:"min_runners,omitempty" description:"Minimum number of active runners"`
	MaxRunners *int `toml:"max_runners,omitempty" json:"max_runners,omitempty" description:"Maximum number of active runners"`

	Description    string `toml:"description,omitempty" json:"description" description:"Runner description"`
	RunUntagged    bool   `toml:"run_untagged,omitempty" json:"run_untagged" description:"Pick up jobs without tags"`
	Locked         bool   `toml:"locked,omitempty" json:"locked" description:"Lock runners to the current project"`
	AccessLevel    string `toml:"access_level,omitempty" json:"access_level" description:"not_protected or ref_protected"`
	MaximumTimeout int    `toml:"maximum_timeout,omitempty" json:"maximum_timeout" description:"Maximum job timeout in seconds"`

	ScaleInterval    time.Duration  `toml:"scale_interval,omitempty" json:"scale_interval" description:"Interval of the scaling loop"`
	ProvisionTimeout *time.Duration `toml:"provision_timeout,omitempty" json:"provision_timeout,omitempty" description:"Deadline for provisioning one instance, 0 disables it"`

	Instance InstanceConfig `toml:"instance,omitempty" json:"instance"`
	Launcher LauncherConfig `toml:"launcher,omitempty" json:"launcher"`
}

func (c *PoolConfig) GetMinRunners() int {
	if c.MinRunners == nil {
		return DefaultMinRunners
	}

	return *c.MinRunners
}

func (c *PoolConfig) GetMaxRunners() int {
	if c.MaxRunners == nil {
		return DefaultMaxRunners
	}

	return *c.MaxRunners
}

func (c *PoolConfig) GetScaleInterval() time.Duration {
	if c.ScaleInterval <= 0 {
		return DefaultScaleInterval
	}

	return c.ScaleInterval
}

func (c *PoolConfig) GetProvisionTimeout() time.Duration {
	if c.ProvisionTimeout == nil {
		return DefaultProvisionTimeout
	}

	return *c.ProvisionTimeout
}

func (c *PoolConfig) InstanceSpec(name string) (InstanceSpec, error) {
	memory, err := c.Instance.GetMemoryBytes()
	if err != nil {
		return InstanceSpec{}, err
	}

	spec := InstanceSpec{
		Name:        name,
		Pool:        c.Name,
		Image:       c.Instance.Image,
		Kernel:      c.Instance.Kernel,
		KernelArgs:  c.Instance.KernelArgs,
		MemoryBytes: memory,
		VCPUs:       c.Instance.VCPUs,
		Labels:      c.Labels,
	}

	if spec.KernelArgs == "" {
		spec.KernelArgs = DefaultKernelArgs
	}
	if spec.VCPUs <= 0 {
		spec.VCPUs = DefaultVCPUs
	}

	return spec, nil
}

type Config struct {
	LogLevel        *string       `toml:"log_level,omitempty" json:"log_level,omitempty" jsonschema:"enum=panic,enum=fatal,enum=error,enum=warning,enum=warn,enum=info,enum=debug,enum=trace" description:"Log level"`
	LogFormat       *string       `toml:"log_format,omitempty" json:"log_format,omitempty" jsonschema:"enum=runner,enum=text,enum=json" description:"Log format"`
	ListenAddress   string        `toml:"listen_address,omitempty" json:"listen_address" description:"Address of the metrics and debug server"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout,omitempty" json:"shutdown_timeout" description:"Bounded wait for instance teardown on shutdown"`
	SentryDSN       *string       `toml:"sentry_dsn,omitempty" json:"sentry_dsn,omitempty" description:"Sentry DSN errors are reported to"`

	TeardownConcurrency int `toml:"teardown_concurrency,omitempty" json:"teardown_concurrency" description:"Instances of one pool torn down in parallel on shutdown"`

	API      APIConfig      `toml:"api,omitempty" json:"api"`
	Metadata MetadataConfig `toml:"metadata,omitempty" json:"metadata"`

	Platforms    []*PlatformConfig `toml:"platforms" json:"platforms,omitempty"`
	PoolDefaults *PoolConfig       `toml:"pool_defaults,omitempty" json:"pool_defaults,omitempty"`
	Pools        []*PoolConfig     `toml:"pools" json:"pools,omitempty"`

	ModTime time.Time `toml:"-" json:"-"`
	Loaded  bool      `toml:"-" json:"-"`
}

func NewConfig() *Config {
	return &Config{}
}

func (c *Config) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}

	return c.ShutdownTimeout
}

func (c *Config) GetTeardownConcurrency() int {
	if c.TeardownConcurrency <= 0 {
		return DefaultTeardownConcurrency
	}

	return c.TeardownConcurrency
}

func (c *Config) GetAPIAddress() string {
	if c.API.Address == "" {
		return DefaultAPIAddress
	}

	return c.API.Address
}

func (c *Config) GetListenAddress() string {
	if c.ListenAddress == "" {
		return DefaultMetricsAddress
	}

	return c.ListenAddress
}

func (c *Config) GetMetadataAddress() string {
	if c.Metadata.Address == "" {
		return DefaultMetadataAddress
	}

	return c.Metadata.Address
}

func (c *Config) GetMetadataNamespace() string {
	if c.Metadata.Namespace == "" {
		return metadata.DefaultNamespace
	}

	return c.Metadata.Namespace
}

func (c *Config) PlatformByName(name string) (*PlatformConfig, error) {
	for _, platform := range c.Platforms {
		if platform.Name == name {
			return platform, nil
		}
	}

	return nil, fmt.Errorf("could not find a platform with the name %q", name)
}

func (c *Config) LoadConfig(configFile string) error {
	info, err := os.Stat(configFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}

	if _, err = toml.Decode(os.ExpandEnv(string(data)), c); err != nil {
		return err
	}

	if err := c.applyDefaults(); err != nil {
		return err
	}

	for _, platform := range c.Platforms {
		if err := platform.resolveToken(); err != nil {
			return err
		}
	}

	c.ModTime = info.ModTime()
	c.Loaded = true
	return nil
}

func (c *Config) applyDefaults() error {
	if c.PoolDefaults != nil {
		for _, pool := range c.Pools {
			// explicit zero values set through pointers must survive
			if err := mergo.Merge(pool, *c.PoolDefaults, mergo.WithoutDereference); err != nil {
				return fmt.Errorf("merging pool defaults into %q: %w", pool.Name, err)
			}
		}
	}

	// a single platform does not need to be referenced explicitly
	if len(c.Platforms) == 1 {
		for _, pool := range c.Pools {
			if pool.Platform == "" {
				pool.Platform = c.Platforms[0].Name
			}
		}
	}

	return nil
}

// Validate checks the semantic constraints that the schema can't express. Any
// returned error is fatal at startup.
func (c *Config) Validate() error {
	var result *multierror.Error

	platforms := map[string]bool{}
	for i, platform := range c.Platforms {
		if platform.Name == "" {
			result = multierror.Append(result, fmt.Errorf("platforms[%d].name is required", i))
			continue
		}
		if platforms[platform.Name] {
			result = multierror.Append(result, fmt.Errorf("platform %q is defined more than once", platform.Name))
		}
		platforms[platform.Name] = true

		if err := platform.validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if len(c.Pools) == 0 {
		result = multierror.Append(result, errors.New("at least one pool must be configured"))
	}

	pools := map[string]bool{}
	for i, pool := range c.Pools {
		if pool.Name == "" {
			result = multierror.Append(result, fmt.Errorf("pools[%d].name is required", i))
			continue
		}
		if pools[pool.Name] {
			result = multierror.Append(result, fmt.Errorf("pool %q is defined more than once", pool.Name))
		}
		pools[pool.Name] = true

		if !platforms[pool.Platform] {
			result = multierror.Append(result, fmt.Errorf("pool %q references unknown platform %q", pool.Name, pool.Platform))
		}

		if err := pool.validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if c.Metadata.Address != "" {
		if _, _, err := net.SplitHostPort(c.Metadata.Address); err != nil {
			result = multierror.Append(result, fmt.Errorf("metadata.address: %w", err))
		}
	}

	return result.ErrorOrNil()
}

func (c *PlatformConfig) validate() error {
	var result *multierror.Error

	scopes, ok := validScopes[c.Type]
	if !ok {
		return fmt.Errorf("platform %q: unknown type %q", c.Name, c.Type)
	}

	if c.URL == "" {
		result = multierror.Append(result, fmt.Errorf("platform %q: url is required", c.Name))
	}
	if c.Token == "" {
		result = multierror.Append(result, fmt.Errorf("platform %q: token or token_file is required", c.Name))
	}

	scope := c.Scope
	if scope == "" {
		result = multierror.Append(result, fmt.Errorf("platform %q: scope is required (one of %v)", c.Name, scopes))
		return result.ErrorOrNil()
	}

	known := false
	for _, s := range scopes {
		known = known || s == scope
	}
	if !known {
		result = multierror.Append(result, fmt.Errorf("platform %q: scope %q must be one of %v", c.Name, scope, scopes))
	}

	switch {
	case scope == ScopeGroup && c.GroupID == 0:
		result = multierror.Append(result, fmt.Errorf("platform %q: group_id is required for group scoped runners", c.Name))
	case scope == ScopeProject && c.ProjectID == 0:
		result = multierror.Append(result, fmt.Errorf("platform %q: project_id is required for project scoped runners", c.Name))
	case (scope == ScopeOrg || scope == ScopeRepo) && c.Owner == "":
		result = multierror.Append(result, fmt.Errorf("platform %q: owner is required for %s scoped runners", c.Name, scope))
	}

	if scope == ScopeRepo && c.Repo == "" {
		result = multierror.Append(result, fmt.Errorf("platform %q: repo is required for repo scoped runners", c.Name))
	}

	if c.ExecutionMode != "" && !c.ExecutionMode.IsValid() {
		result = multierror.Append(result, fmt.Errorf("platform %q: unknown execution_mode %q", c.Name, c.ExecutionMode))
	}

	return result.ErrorOrNil()
}

func (c *PoolConfig) validate() error {
	var result *multierror.Error

	if c.GetMinRunners() < 0 {
		result = multierror.Append(result, fmt.Errorf("pool %q: min_runners cannot be negative", c.Name))
	}
	if c.GetMaxRunners() < 1 {
		result = multierror.Append(result, fmt.Errorf("pool %q: max_runners must be at least 1", c.Name))
	}
	if c.GetMinRunners() > c.GetMaxRunners() {
		result = multierror.Append(result, fmt.Errorf("pool %q: min_runners cannot be greater than max_runners", c.Name))
	}

	switch c.AccessLevel {
	case "", "not_protected", "ref_protected":
	default:
		result = multierror.Append(result, fmt.Errorf("pool %q: access_level must be 'not_protected' or 'ref_protected'", c.Name))
	}

	if _, err := c.Instance.GetMemoryBytes(); err != nil {
		result = multierror.Append(result, fmt.Errorf("pool %q: %w", c.Name, err))
	}

	if c.Launcher.Command == "" {
		result = multierror.Append(result, fmt.Errorf("pool %q: launcher.command is required", c.Name))
	}
	if c.Launcher.Network != "" {
		if _, _, err := net.ParseCIDR(c.Launcher.Network); err != nil {
			result = multierror.Append(result, fmt.Errorf("pool %q: launcher.network: %w", c.Name, err))
		}
	}

	return result.ErrorOrNil()
}
