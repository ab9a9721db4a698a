package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Networks a config may select.
const (
	NetworkSim      = "sim"
	NetworkLocalnet = "localnet"
	NetworkDevnet   = "devnet"
	NetworkTestnet  = "testnet"
	NetworkMainnet  = "mainnet"
)

var defaultEndpoints = map[string]string{
	NetworkLocalnet: "http://127.0.0.1:9000",
	NetworkDevnet:   "https://fullnode.devnet.sui.io:443",
	NetworkTestnet:  "https://fullnode.testnet.sui.io:443",
	NetworkMainnet:  "https://fullnode.mainnet.sui.io:443",
}

// Environment variables that override file values.
const (
	EnvEndpoint  = "ROLLBENCH_ENDPOINT"
	EnvPackageID = "ROLLBENCH_PACKAGE_ID"
	EnvSender    = "ROLLBENCH_SENDER"
)

type Config struct {
	Network      string            `yaml:"network" toml:"network"`
	Endpoint     string            `yaml:"endpoint" toml:"endpoint"`
	RPCMethod    string            `yaml:"rpc_method" toml:"rpc_method"`
	PackageID    string            `yaml:"package_id" toml:"package_id"`
	Module       string            `yaml:"module" toml:"module"`
	Sender       string            `yaml:"sender" toml:"sender"`
	GasBudget    uint64            `yaml:"gas_budget" toml:"gas_budget"`
	Iterations   int               `yaml:"iterations" toml:"iterations"`
	Pool         Pool              `yaml:"pool" toml:"pool"`
	Throttle     Throttle          `yaml:"throttle" toml:"throttle"`
	Scenarios    []string          `yaml:"scenarios" toml:"scenarios"`
	PayloadSizes []uint64          `yaml:"payload_sizes" toml:"payload_sizes"`
	Depths       map[string]uint64 `yaml:"depths" toml:"depths"`
	Sim          Sim               `yaml:"sim" toml:"sim"`
	Secrets      Secrets           `yaml:"secrets" toml:"secrets"`
	Credentials  Credentials       `yaml:"credentials" toml:"credentials"`
	Results      Results           `yaml:"results" toml:"results"`
	Localnet     Localnet          `yaml:"localnet" toml:"localnet"`
	Pricing      string            `yaml:"pricing" toml:"pricing"`

	// Token is resolved from the environment, never read from the file.
	Token string `yaml:"-" toml:"-"`
}

type Pool struct {
	Size int `yaml:"size" toml:"size"`
}

type Throttle struct {
	Delay       Duration `yaml:"delay" toml:"delay"`
	SharedDelay Duration `yaml:"shared_delay" toml:"shared_delay"`
	MaxRPS      float64  `yaml:"max_rps" toml:"max_rps"`
}

type Sim struct {
	ConflictEvery int `yaml:"conflict_every" toml:"conflict_every"`
}

type Secrets struct {
	EnvFile string `yaml:"env_file" toml:"env_file"`
}

type Credentials struct {
	TokenEnv string `yaml:"token_env" toml:"token_env"`
}

type Results struct {
	Dir           string `yaml:"dir" toml:"dir"`
	MaxMessageLen int    `yaml:"max_message_len" toml:"max_message_len"`
}

type Localnet struct {
	Image          string   `yaml:"image" toml:"image"`
	RPCPort        int      `yaml:"rpc_port" toml:"rpc_port"`
	StartupTimeout Duration `yaml:"startup_timeout" toml:"startup_timeout"`
}

// Duration decodes from strings such as "750ms" in both YAML and TOML. An
// explicit "0s" is kept; only absent values are defaulted.
type Duration struct {
	time.Duration
	set bool
}

// IsSet reports whether the value came from the config file.
func (d Duration) IsSet() bool { return d.set }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	d.set = true
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Load reads a YAML config, or TOML when path ends in .toml, applies the
// environment overlay and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := resolve(&cfg, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a validated config for a simulated run.
func Default() *Config {
	cfg := &Config{}
	// A zero sim config always validates.
	_ = validate(cfg)
	return cfg
}

func resolve(cfg *Config, baseDir string) error {
	overlayEnv(cfg)
	if err := loadToken(cfg, baseDir); err != nil {
		return err
	}
	return validate(cfg)
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(EnvPackageID); v != "" {
		cfg.PackageID = v
	}
	if v := os.Getenv(EnvSender); v != "" {
		cfg.Sender = v
	}
}

// loadToken reads the credential named by credentials.token_env. The process
// environment wins over secrets.env_file.
func loadToken(cfg *Config, baseDir string) error {
	if cfg.Credentials.TokenEnv == "" {
		cfg.Credentials.TokenEnv = "ROLLBENCH_TOKEN"
	}
	if v := os.Getenv(cfg.Credentials.TokenEnv); v != "" {
		cfg.Token = v
		return nil
	}
	if cfg.Secrets.EnvFile == "" {
		return nil
	}
	path := cfg.Secrets.EnvFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	vars, err := ParseEnvFile(path)
	if err != nil {
		return fmt.Errorf("reading secrets env_file: %w", err)
	}
	cfg.Token = vars[cfg.Credentials.TokenEnv]
	return nil
}

func validate(cfg *Config) error {
	if cfg.Network == "" {
		cfg.Network = NetworkSim
	}
	if cfg.Network != NetworkSim {
		if _, ok := defaultEndpoints[cfg.Network]; !ok {
			return fmt.Errorf("unknown network %q", cfg.Network)
		}
	}
	if cfg.Localnet.RPCPort == 0 {
		cfg.Localnet.RPCPort = 9000
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoints[cfg.Network]
		if cfg.Network == NetworkLocalnet {
			cfg.Endpoint = fmt.Sprintf("http://127.0.0.1:%d", cfg.Localnet.RPCPort)
		}
	}
	if cfg.RPCMethod == "" {
		cfg.RPCMethod = "bench_executeMoveCall"
	}
	if cfg.Module == "" {
		cfg.Module = "bench"
	}

	if cfg.Network == NetworkSim {
		if cfg.PackageID == "" {
			cfg.PackageID = "0x0"
		}
		if cfg.GasBudget == 0 {
			cfg.GasBudget = 50_000_000
		}
	} else {
		if cfg.PackageID == "" {
			return fmt.Errorf("package_id is required for network %s", cfg.Network)
		}
		if cfg.Sender == "" {
			return fmt.Errorf("sender is required for network %s", cfg.Network)
		}
		if cfg.Token == "" {
			return fmt.Errorf("credential %s is not set", cfg.Credentials.TokenEnv)
		}
	}
	if cfg.GasBudget == 0 {
		return fmt.Errorf("gas_budget must be positive")
	}

	if cfg.Iterations == 0 {
		cfg.Iterations = 10
	}
	if cfg.Iterations < 2 {
		return fmt.Errorf("iterations must be at least 2")
	}
	if cfg.Pool.Size == 0 {
		cfg.Pool.Size = 5
	}
	if cfg.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be at least 1")
	}

	if !cfg.Throttle.Delay.IsSet() {
		cfg.Throttle.Delay.Duration = 500 * time.Millisecond
	}
	if !cfg.Throttle.SharedDelay.IsSet() {
		cfg.Throttle.SharedDelay.Duration = 2 * time.Second
	}
	if cfg.Throttle.Delay.Duration < 0 || cfg.Throttle.SharedDelay.Duration < 0 {
		return fmt.Errorf("throttle delays must not be negative")
	}
	if cfg.Throttle.MaxRPS < 0 {
		return fmt.Errorf("throttle.max_rps must not be negative")
	}

	for label := range cfg.Depths {
		switch label {
		case "early", "shallow", "medium", "deep":
		default:
			return fmt.Errorf("depths: unknown label %q", label)
		}
	}
	for _, n := range cfg.PayloadSizes {
		if n == 0 {
			return fmt.Errorf("payload_sizes: sizes must be positive")
		}
	}
	if cfg.Sim.ConflictEvery < 0 {
		return fmt.Errorf("sim.conflict_every must not be negative")
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Results.MaxMessageLen == 0 {
		cfg.Results.MaxMessageLen = 200
	}

	if cfg.Localnet.Image == "" {
		cfg.Localnet.Image = "mysten/sui-tools:mainnet"
	}
	if cfg.Localnet.RPCPort < 1 || cfg.Localnet.RPCPort > 65535 {
		return fmt.Errorf("localnet.rpc_port %d out of range", cfg.Localnet.RPCPort)
	}
	if cfg.Localnet.StartupTimeout.Duration == 0 {
		cfg.Localnet.StartupTimeout.Duration = 90 * time.Second
	}
	return nil
}
