package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drop-protocol/coordinator/coordinator/api"
	"github.com/drop-protocol/coordinator/coordinator/chainclient"
	"github.com/drop-protocol/coordinator/coordinator/config"
	"github.com/drop-protocol/coordinator/coordinator/contracts"
	"github.com/drop-protocol/coordinator/coordinator/db"
	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
	"github.com/drop-protocol/coordinator/coordinator/factory"
	"github.com/drop-protocol/coordinator/coordinator/metrics"
	"github.com/drop-protocol/coordinator/coordinator/modules"
	"github.com/drop-protocol/coordinator/coordinator/relay"
	"github.com/drop-protocol/coordinator/coordinator/scheduler"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators a Coordinator is built from. Zero fields are
// filled from the configuration: Chains by dialing, HubQuerier from the hub
// chain, Executor with a real process executor, Registry with DefaultRegistry
// and History from HISTORY_DB_DIR when set.
type Deps struct {
	Chains     *chainclient.Set
	HubQuerier contracts.Querier
	Executor   relay.Executor
	Registry   *modules.Registry
	Metrics    *metrics.Metrics
	History    *db.History

	// SkipStartupValidation disables the chain reachability checks.
	SkipStartupValidation bool
}

// Coordinator wires discovery, the check modules, the relay invoker, the
// scheduler and the status server into one process.
type Coordinator struct {
	cfg  *config.Config
	log  zerolog.Logger
	deps Deps

	metrics    *metrics.Metrics
	store      *factory.Store
	discoverer *factory.Discoverer
	refresher  *factory.Refresher
	relayer    relay.Relayer
	modules    []modules.Module
	runner     *scheduler.Runner
	server     *api.Server
	cleaner    *db.HistoryCleaner

	historyDB  *db.DB // opened here, closed on shutdown
	ownsChains bool
	startedAt  time.Time
	mu         sync.RWMutex
}

// New creates a Coordinator. Nothing touches the network until Setup or Run.
func New(cfg *config.Config, log zerolog.Logger, deps Deps) *Coordinator {
	if deps.Registry == nil {
		deps.Registry = DefaultRegistry()
	}
	if deps.Executor == nil {
		deps.Executor = relay.ExecExecutor{}
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Coordinator{
		cfg:     cfg,
		log:     log.With().Str("component", "coordinator").Logger(),
		deps:    deps,
		metrics: m,
		store:   factory.NewStore(log),
	}
}

// Setup performs the startup sequence: chain clients, startup validation,
// factory discovery and module configuration. Every error it returns is fatal.
func (c *Coordinator) Setup(ctx context.Context) error {
	if c.deps.Chains == nil && c.deps.HubQuerier == nil {
		chains, err := chainclient.NewSet(c.cfg, c.log)
		if err != nil {
			return fmt.Errorf("failed to create chain clients: %w", err)
		}
		c.deps.Chains = chains
		c.ownsChains = true
	}
	if c.deps.HubQuerier == nil {
		c.deps.HubQuerier = c.deps.Chains.Hub.Query
	}

	if c.deps.History == nil && c.cfg.HistoryDir != "" {
		database, err := db.Open(c.cfg.HistoryDir)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		c.historyDB = database
		c.deps.History = db.NewHistory(database)
	}

	if c.deps.Chains != nil && !c.deps.SkipStartupValidation {
		validator := NewStartupValidator(c.deps.Chains, c.cfg.QueryTimeout, c.log)
		if _, err := validator.Validate(ctx); err != nil {
			return coorderrors.NewCoordinatorError(coorderrors.ErrCodeConfig, "startup", "startup validation failed", err)
		}
	}

	factoryClient := contracts.NewFactoryClient(c.deps.HubQuerier, c.cfg.FactoryContract, c.cfg.QueryTimeout)
	c.discoverer = factory.NewDiscoverer(factoryClient, factory.DiscovererConfig{
		Attempts: c.cfg.DiscoveryRetries,
		Delay:    c.cfg.DiscoveryRetryDelay,
	}, c.log)

	state, err := c.discoverer.Discover(ctx)
	c.metrics.ObserveDiscovery(err == nil, state.Len())
	if err != nil {
		return err
	}
	c.store.Replace(state)
	c.recordFactory(state)

	c.relayer = relay.NewInvoker(c.cfg.ICQRunCommand, c.deps.Executor, c.cfg.RelayTimeout, c.metrics, c.log)

	mctx := modules.NewContext(c.cfg, c.deps.Chains, state, c.relayer, c.log)
	mctx.HubQuerier = c.deps.HubQuerier

	mods, err := c.deps.Registry.Build(c.cfg.Modules, mctx)
	if err != nil {
		return coorderrors.NewConfigError(err.Error())
	}
	for _, m := range mods {
		if _, err := m.Configure(mctx); err != nil {
			return fmt.Errorf("failed to configure module %s: %w", m.Name(), err)
		}
	}

	listeners := []factory.Listener{c}
	for _, m := range mods {
		if aware, ok := m.(modules.FactoryAware); ok {
			listeners = append(listeners, aware)
		}
	}
	c.refresher = factory.NewRefresher(c.discoverer, c.store, c.cfg.FactoryRefreshPeriod, c.log, listeners...)

	opts := scheduler.Options{
		Interval:       c.cfg.ChecksPeriod,
		ModuleTimeout:  c.cfg.ModuleTimeout,
		Strategy:       c.cfg.ExecutionStrategy,
		MaxConcurrency: c.cfg.MaxConcurrency,
		Metrics:        c.metrics,
	}
	if c.deps.History != nil {
		opts.Observer = newRunRecorder(c.deps.History, mods, c.log)
	}
	runner := scheduler.New(mods, opts, c.log)

	c.mu.Lock()
	c.modules = mods
	c.runner = runner
	c.mu.Unlock()

	c.log.Info().
		Int("modules", len(mods)).
		Strs("roles", state.Roles()).
		Dur("checks_period", c.cfg.ChecksPeriod).
		Msg("coordinator set up")
	return nil
}

// Run sets up the coordinator, starts the scheduler, the factory refresher and
// the status server, and blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info().Msg("starting coordinator")

	if err := c.Setup(ctx); err != nil {
		c.closeResources()
		return err
	}

	if c.cfg.QueryServerEnabled {
		c.server = api.NewServer(c, c.metrics.Registry, c.log, c.cfg.QueryServerPort)
		if err := c.server.Start(); err != nil {
			c.closeResources()
			return fmt.Errorf("failed to start query server: %w", err)
		}
	}

	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()

	c.runner.Start(ctx)
	c.refresher.Start(ctx)
	if c.deps.History != nil {
		c.cleaner = db.NewHistoryCleaner(c.deps.History, c.cfg.HistoryCleanupPeriod, c.cfg.HistoryRetention, c.log)
		c.cleaner.Start(ctx)
	}

	c.log.Info().Msg("initialization complete, entering main loop")
	<-ctx.Done()

	c.log.Info().Msg("shutting down coordinator")
	c.shutdown()
	return nil
}

func (c *Coordinator) shutdown() {
	c.refresher.Stop()
	c.runner.Stop()
	if c.cleaner != nil {
		c.cleaner.Stop()
	}

	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.server.Stop(ctx); err != nil {
			c.log.Error().Err(err).Msg("failed to stop query server")
		}
	}
	c.closeResources()
}

func (c *Coordinator) closeResources() {
	if c.ownsChains && c.deps.Chains != nil {
		if err := c.deps.Chains.Close(); err != nil {
			c.log.Warn().Err(err).Msg("failed to close chain clients")
		}
	}
	if c.historyDB != nil {
		if err := c.historyDB.Close(); err != nil {
			c.log.Warn().Err(err).Msg("failed to close history database")
		}
	}
}

// OnFactoryDiscovered records a refreshed factory state.
func (c *Coordinator) OnFactoryDiscovered(state factory.State) {
	c.metrics.ObserveDiscovery(true, state.Len())
	c.recordFactory(state)
}

func (c *Coordinator) recordFactory(state factory.State) {
	if c.deps.History == nil {
		return
	}
	if err := c.deps.History.RecordFactory(c.cfg.FactoryContract, state.Map(), c.store.UpdatedAt()); err != nil {
		c.log.Warn().Err(err).Msg("failed to record factory snapshot")
	}
}

// ModuleHistory returns the newest persisted cycles of module.
func (c *Coordinator) ModuleHistory(module string, limit int) ([]api.RunRecord, error) {
	if c.deps.History == nil {
		return nil, api.ErrHistoryDisabled
	}
	runs, err := c.deps.History.RecentRuns(module, limit)
	if err != nil {
		return nil, err
	}
	return toRunRecords(runs), nil
}

// RunTick runs one scheduler tick synchronously. Setup must have succeeded.
func (c *Coordinator) RunTick(ctx context.Context) {
	c.mu.RLock()
	runner := c.runner
	c.mu.RUnlock()
	if runner != nil {
		runner.RunTick(ctx)
	}
}

// Modules reports each scheduled module's configuration and run status.
func (c *Coordinator) Modules() []api.ModuleInfo {
	c.mu.RLock()
	mods, runner := c.modules, c.runner
	c.mu.RUnlock()
	if runner == nil {
		return nil
	}

	statuses := make(map[string]scheduler.Status)
	for _, st := range runner.Statuses() {
		statuses[st.Module] = st
	}

	infos := make([]api.ModuleInfo, 0, len(mods))
	for _, m := range mods {
		info := api.ModuleInfo{Status: statuses[m.Name()]}
		if d, ok := m.(modules.Describer); ok {
			info.Config = d.Resolved()
		} else {
			info.Config = modules.Config{Module: m.Name()}
		}
		infos = append(infos, info)
	}
	return infos
}

// Factory reports the current factory state.
func (c *Coordinator) Factory() api.FactoryInfo {
	return api.FactoryInfo{
		Contract:  c.cfg.FactoryContract,
		Roles:     c.store.Current().Map(),
		UpdatedAt: c.store.UpdatedAt(),
	}
}

// Health is healthy while ticks keep completing. A tick is allowed two periods
// plus one module timeout per module before the scheduler counts as stalled.
func (c *Coordinator) Health() api.HealthInfo {
	c.mu.RLock()
	runner, startedAt, n := c.runner, c.startedAt, len(c.modules)
	c.mu.RUnlock()
	if runner == nil || startedAt.IsZero() {
		return api.HealthInfo{}
	}

	if n < 1 {
		n = 1
	}
	staleAfter := 2*c.cfg.ChecksPeriod + time.Duration(n)*c.cfg.ModuleTimeout

	last := runner.LastTick()
	ref := last
	if ref.IsZero() {
		ref = startedAt
	}
	return api.HealthInfo{
		Healthy:  time.Since(ref) <= staleAfter,
		Ticks:    runner.Ticks(),
		LastTick: last,
	}
}
