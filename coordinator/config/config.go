package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
)

// Environment keys
const (
	KeyMnemonic             = "MNEMONIC"
	KeyFactoryContract      = "FACTORY_CONTRACT"
	KeyICQRunCommand        = "ICQ_RUN_CMD"
	KeyChecksPeriod         = "CHECKS_PERIOD"
	KeyGasAdjustment        = "GAS_ADJUSTMENT"
	KeyModules              = "MODULES"
	KeyQueryTimeout         = "QUERY_TIMEOUT"
	KeyModuleTimeout        = "MODULE_TIMEOUT"
	KeyRelayTimeout         = "RELAY_TIMEOUT"
	KeyExecutionStrategy    = "EXECUTION_STRATEGY"
	KeyMaxConcurrency       = "MAX_CONCURRENCY"
	KeyDiscoveryRetries     = "DISCOVERY_RETRIES"
	KeyDiscoveryRetryDelay  = "DISCOVERY_RETRY_DELAY"
	KeyFactoryRefreshPeriod = "FACTORY_REFRESH_PERIOD"
	KeyLogLevel             = "LOG_LEVEL"
	KeyLogFormat            = "LOG_FORMAT"
	KeyLogSampler           = "LOG_SAMPLER"
	KeyQueryServerEnabled   = "QUERY_SERVER_ENABLED"
	KeyQueryServerPort      = "QUERY_SERVER_PORT"
	KeyHistoryDir           = "HISTORY_DB_DIR"
	KeyHistoryRetention     = "HISTORY_RETENTION"
	KeyHistoryCleanup       = "HISTORY_CLEANUP_PERIOD"

	hubPrefix    = "HUB"
	targetPrefix = "TARGET"

	contractOverrideSuffix = "_CONTRACT"
)

const (
	defaultChecksPeriodSeconds  = 60
	defaultQueryTimeoutSeconds  = 10
	defaultModuleTimeoutSeconds = 60
	defaultRelayTimeoutSeconds  = 45
	defaultDiscoveryRetries     = 5
	defaultDiscoveryRetryDelay  = 2
	defaultGasAdjustment        = 1.5
	defaultMaxConcurrency       = 4
	defaultQueryServerPort      = 8080
	defaultHistoryRetention     = 7 * 24 * 60 * 60
	defaultHistoryCleanup       = 60 * 60
	defaultHubAccountPrefix     = "neutron"
	defaultTargetAccountPrefix  = "cosmos"
)

// LoadFromEnv merges an optional .env file into the process environment and
// builds the configuration from it. An empty envFile means ".env". It is meant
// to be called once at startup.
func LoadFromEnv(envFile string, moduleNames ...string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	// a missing .env file is not an error
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()
	return Load(v, moduleNames...)
}

// Load builds and validates a Config from the given viper instance.
// moduleNames lists the modules whose <NAME>_CONTRACT override keys are read.
func Load(v *viper.Viper, moduleNames ...string) (*Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.Mnemonic = strings.TrimSpace(v.GetString(KeyMnemonic))
	cfg.FactoryContract = strings.TrimSpace(v.GetString(KeyFactoryContract))
	cfg.ICQRunCommand = strings.Fields(v.GetString(KeyICQRunCommand))
	cfg.LogFormat = v.GetString(KeyLogFormat)
	cfg.ExecutionStrategy = ExecutionStrategy(strings.ToLower(v.GetString(KeyExecutionStrategy)))
	cfg.Modules = splitList(v.GetString(KeyModules))
	cfg.HistoryDir = strings.TrimSpace(v.GetString(KeyHistoryDir))

	if cfg.ChecksPeriod, err = seconds(v, KeyChecksPeriod, defaultChecksPeriodSeconds); err != nil {
		return nil, err
	}
	if cfg.QueryTimeout, err = seconds(v, KeyQueryTimeout, defaultQueryTimeoutSeconds); err != nil {
		return nil, err
	}
	if cfg.ModuleTimeout, err = seconds(v, KeyModuleTimeout, defaultModuleTimeoutSeconds); err != nil {
		return nil, err
	}
	if cfg.RelayTimeout, err = seconds(v, KeyRelayTimeout, defaultRelayTimeoutSeconds); err != nil {
		return nil, err
	}
	if cfg.DiscoveryRetryDelay, err = seconds(v, KeyDiscoveryRetryDelay, defaultDiscoveryRetryDelay); err != nil {
		return nil, err
	}
	if cfg.FactoryRefreshPeriod, err = seconds(v, KeyFactoryRefreshPeriod, 0); err != nil {
		return nil, err
	}
	if cfg.HistoryRetention, err = seconds(v, KeyHistoryRetention, defaultHistoryRetention); err != nil {
		return nil, err
	}
	if cfg.HistoryCleanupPeriod, err = seconds(v, KeyHistoryCleanup, defaultHistoryCleanup); err != nil {
		return nil, err
	}
	if cfg.DiscoveryRetries, err = integer(v, KeyDiscoveryRetries, defaultDiscoveryRetries); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrency, err = integer(v, KeyMaxConcurrency, defaultMaxConcurrency); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = integer(v, KeyLogLevel, 1); err != nil {
		return nil, err
	}
	if cfg.QueryServerPort, err = integer(v, KeyQueryServerPort, defaultQueryServerPort); err != nil {
		return nil, err
	}
	if cfg.LogSampler, err = boolean(v, KeyLogSampler, false); err != nil {
		return nil, err
	}
	if cfg.QueryServerEnabled, err = boolean(v, KeyQueryServerEnabled, true); err != nil {
		return nil, err
	}
	if cfg.GasAdjustment, err = float(v, KeyGasAdjustment, defaultGasAdjustment); err != nil {
		return nil, err
	}

	cfg.Hub = loadChain(v, hubPrefix, defaultHubAccountPrefix)
	cfg.Target = loadChain(v, targetPrefix, defaultTargetAccountPrefix)

	overrideNames := append(append([]string{}, moduleNames...), cfg.Modules...)
	cfg.ContractOverride = make(map[string]string)
	for _, name := range overrideNames {
		key := strings.ToUpper(name) + contractOverrideSuffix
		if addr := strings.TrimSpace(v.GetString(key)); addr != "" {
			cfg.ContractOverride[name] = addr
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadChain(v *viper.Viper, prefix, defaultAccountPrefix string) ChainConfig {
	key := func(name string) string { return prefix + "_" + name }

	chain := ChainConfig{
		ChainID:       strings.TrimSpace(v.GetString(key("CHAIN_ID"))),
		RPCURL:        strings.TrimSpace(v.GetString(key("RPC"))),
		GRPCURLs:      splitList(v.GetString(key("GRPC"))),
		RESTURL:       strings.TrimSpace(v.GetString(key("REST"))),
		GasPrice:      strings.TrimSpace(v.GetString(key("GAS_PRICE"))),
		AccountPrefix: strings.TrimSpace(v.GetString(key("ACCOUNT_PREFIX"))),
	}
	if chain.AccountPrefix == "" {
		chain.AccountPrefix = defaultAccountPrefix
	}
	return chain
}

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < -1 || cfg.LogLevel > 5 {
		return coorderrors.NewConfigError("log level must be between -1 and 5")
	}

	// Validate log format
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return coorderrors.NewConfigError("log format must be 'json' or 'console'")
	}

	if cfg.FactoryContract == "" {
		return coorderrors.NewConfigError(KeyFactoryContract + " is required")
	}
	if len(cfg.ICQRunCommand) == 0 {
		return coorderrors.NewConfigError(KeyICQRunCommand + " is required")
	}

	if cfg.ChecksPeriod <= 0 {
		return coorderrors.NewConfigError(KeyChecksPeriod + " must be positive")
	}
	if cfg.QueryTimeout <= 0 || cfg.ModuleTimeout <= 0 || cfg.RelayTimeout <= 0 {
		return coorderrors.NewConfigError("timeouts must be positive")
	}
	// the relay runs inside the module cycle after its query
	if cfg.RelayTimeout+cfg.QueryTimeout >= cfg.ModuleTimeout {
		return coorderrors.NewConfigError(KeyRelayTimeout + " plus " + KeyQueryTimeout + " must be less than " + KeyModuleTimeout)
	}
	if cfg.FactoryRefreshPeriod < 0 {
		return coorderrors.NewConfigError(KeyFactoryRefreshPeriod + " must not be negative")
	}
	if cfg.DiscoveryRetries < 1 {
		return coorderrors.NewConfigError(KeyDiscoveryRetries + " must be at least 1")
	}

	if cfg.ExecutionStrategy == "" {
		cfg.ExecutionStrategy = StrategySequential
	}
	if cfg.ExecutionStrategy != StrategySequential && cfg.ExecutionStrategy != StrategyConcurrent {
		return coorderrors.NewConfigError("execution strategy must be 'sequential' or 'concurrent'")
	}
	if cfg.MaxConcurrency < 1 {
		return coorderrors.NewConfigError(KeyMaxConcurrency + " must be at least 1")
	}

	if cfg.GasAdjustment < 1 {
		return coorderrors.NewConfigError(KeyGasAdjustment + " must be at least 1")
	}

	if cfg.HistoryRetention < 0 || cfg.HistoryCleanupPeriod < 0 {
		return coorderrors.NewConfigError("history retention and cleanup period must not be negative")
	}

	if cfg.QueryServerEnabled && (cfg.QueryServerPort <= 0 || cfg.QueryServerPort > 65535) {
		return coorderrors.NewConfigError(KeyQueryServerPort + " must be a valid TCP port")
	}

	if err := validateChain(hubPrefix, &cfg.Hub, cfg.HasCredentials()); err != nil {
		return err
	}
	return validateChain(targetPrefix, &cfg.Target, cfg.HasCredentials())
}

func validateChain(prefix string, chain *ChainConfig, signing bool) error {
	if len(chain.GRPCURLs) == 0 {
		return coorderrors.NewConfigError(prefix + "_GRPC is required")
	}
	if chain.AccountPrefix == "" {
		return coorderrors.NewConfigError(prefix + "_ACCOUNT_PREFIX must not be empty")
	}
	if signing {
		if chain.ChainID == "" {
			return coorderrors.NewConfigError(prefix + "_CHAIN_ID is required when " + KeyMnemonic + " is set")
		}
		if chain.GasPrice == "" {
			return coorderrors.NewConfigError(prefix + "_GAS_PRICE is required when " + KeyMnemonic + " is set")
		}
	}
	return nil
}

func seconds(v *viper.Viper, key string, def int) (time.Duration, error) {
	n, err := integer(v, key, def)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func integer(v *viper.Viper, key string, def int) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		return 0, coorderrors.NewConfigError(fmt.Sprintf("%s must be an integer, got %q", key, raw))
	}
	return n, nil
}

func float(v *viper.Viper, key string, def float64) (float64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, coorderrors.NewConfigError(fmt.Sprintf("%s must be a number, got %q", key, raw))
	}
	return f, nil
}

func boolean(v *viper.Viper, key string, def bool) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return false, coorderrors.NewConfigError(fmt.Sprintf("%s must be a boolean, got %q", key, raw))
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
