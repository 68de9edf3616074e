package config

import (
	"strings"
	"time"
)

// ExecutionStrategy selects how the scheduler dispatches modules within a tick.
type ExecutionStrategy string

const (
	// StrategySequential runs modules one after another in registration order
	StrategySequential ExecutionStrategy = "sequential"

	// StrategyConcurrent runs all modules of a tick in parallel and waits for all of them
	StrategyConcurrent ExecutionStrategy = "concurrent"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level" yaml:"log_level"`     // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format" yaml:"log_format"`   // "json" or "console"
	LogSampler bool   `json:"log_sampler" yaml:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Credentials; empty means no signing clients are built
	Mnemonic string `json:"mnemonic,omitempty" yaml:"mnemonic,omitempty"`

	// Protocol discovery
	FactoryContract      string        `json:"factory_contract" yaml:"factory_contract"`
	DiscoveryRetries     int           `json:"discovery_retries" yaml:"discovery_retries"`
	DiscoveryRetryDelay  time.Duration `json:"discovery_retry_delay" yaml:"discovery_retry_delay"`
	FactoryRefreshPeriod time.Duration `json:"factory_refresh_period" yaml:"factory_refresh_period"` // 0 disables re-discovery

	// ICQ relayer
	ICQRunCommand []string      `json:"icq_run_cmd" yaml:"icq_run_cmd"` // binary followed by fixed leading args
	RelayTimeout  time.Duration `json:"relay_timeout" yaml:"relay_timeout"`

	// Scheduling
	ChecksPeriod      time.Duration     `json:"checks_period" yaml:"checks_period"`
	QueryTimeout      time.Duration     `json:"query_timeout" yaml:"query_timeout"`
	ModuleTimeout     time.Duration     `json:"module_timeout" yaml:"module_timeout"`
	ExecutionStrategy ExecutionStrategy `json:"execution_strategy" yaml:"execution_strategy"`
	MaxConcurrency    int               `json:"max_concurrency" yaml:"max_concurrency"`

	// Module selection and per-module contract address overrides, keyed by module name
	Modules          []string          `json:"modules,omitempty" yaml:"modules,omitempty"`
	ContractOverride map[string]string `json:"contract_overrides,omitempty" yaml:"contract_overrides,omitempty"`

	GasAdjustment float64 `json:"gas_adjustment" yaml:"gas_adjustment"`

	Hub    ChainConfig `json:"hub" yaml:"hub"`
	Target ChainConfig `json:"target" yaml:"target"`

	// Run history; an empty dir disables it, ":memory:" keeps it in memory
	HistoryDir           string        `json:"history_dir,omitempty" yaml:"history_dir,omitempty"`
	HistoryRetention     time.Duration `json:"history_retention" yaml:"history_retention"`
	HistoryCleanupPeriod time.Duration `json:"history_cleanup_period" yaml:"history_cleanup_period"`

	// Query Server Config
	QueryServerEnabled bool `json:"query_server_enabled" yaml:"query_server_enabled"`
	QueryServerPort    int  `json:"query_server_port" yaml:"query_server_port"`
}

// ChainConfig holds the endpoints and fee settings of one chain
type ChainConfig struct {
	ChainID       string   `json:"chain_id,omitempty" yaml:"chain_id,omitempty"`
	RPCURL        string   `json:"rpc_url,omitempty" yaml:"rpc_url,omitempty"`     // cometbft RPC, used for status checks
	GRPCURLs      []string `json:"grpc_urls" yaml:"grpc_urls"`                     // query and broadcast endpoints
	RESTURL       string   `json:"rest_url,omitempty" yaml:"rest_url,omitempty"`   // reported only
	GasPrice      string   `json:"gas_price,omitempty" yaml:"gas_price,omitempty"` // e.g. "0.025untrn"
	AccountPrefix string   `json:"account_prefix" yaml:"account_prefix"`
}

// OverrideFor returns the explicit contract address configured for a module, if any.
func (c *Config) OverrideFor(module string) (string, bool) {
	if c.ContractOverride == nil {
		return "", false
	}
	addr, ok := c.ContractOverride[module]
	return addr, ok && addr != ""
}

// HasCredentials reports whether signing clients should be constructed.
func (c *Config) HasCredentials() bool {
	return strings.TrimSpace(c.Mnemonic) != ""
}

// Redacted returns a copy that is safe to print.
func (c Config) Redacted() Config {
	if c.Mnemonic != "" {
		c.Mnemonic = "<redacted>"
	}
	return c
}
