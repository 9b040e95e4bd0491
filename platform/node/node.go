// Package node wires the full platform together: configuration, the bolt
// store, the redis-backed shared caches, and every long-running service,
// all registered on a runtime.ServiceRegistry and torn down in reverse
// order on shutdown.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gauntletlabs/gauntlet/config/features"
	"github.com/gauntletlabs/gauntlet/config/params"
	"github.com/gauntletlabs/gauntlet/monitoring/prometheus"
	"github.com/gauntletlabs/gauntlet/platform/audit"
	"github.com/gauntletlabs/gauntlet/platform/backtest"
	"github.com/gauntletlabs/gauntlet/platform/bars"
	"github.com/gauntletlabs/gauntlet/platform/broker"
	"github.com/gauntletlabs/gauntlet/platform/db"
	"github.com/gauntletlabs/gauntlet/platform/evolution"
	"github.com/gauntletlabs/gauntlet/platform/flags"
	"github.com/gauntletlabs/gauntlet/platform/idempotency"
	"github.com/gauntletlabs/gauntlet/platform/regime"
	"github.com/gauntletlabs/gauntlet/platform/risk"
	"github.com/gauntletlabs/gauntlet/platform/rpc"
	"github.com/gauntletlabs/gauntlet/platform/stage"
	"github.com/gauntletlabs/gauntlet/runtime"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var log = logrus.WithField("prefix", "node")

const statsReportInterval = 5 * time.Minute

// PlatformNode owns the lifecycle of the entire system: it opens the
// stores, registers every service, and blocks until shutdown.
type PlatformNode struct {
	cliCtx   *cli.Context
	ctx      context.Context
	cancel   context.CancelFunc
	lock     sync.RWMutex
	services *runtime.ServiceRegistry
	stop     chan struct{} // Channel to wait for termination notifications.
	db       db.Database
	redis    *redis.Client
}

// New creates a node instance, sets up configuration options, and registers
// every required service.
func New(cliCtx *cli.Context) (*PlatformNode, error) {
	if file := cliCtx.String(flags.PlatformConfigFileFlag.Name); file != "" {
		params.LoadConfigFile(file)
	}
	features.ConfigurePlatform(cliCtx)
	applyConfigOverrides(cliCtx)

	ctx, cancel := context.WithCancel(cliCtx.Context)
	node := &PlatformNode{
		cliCtx:   cliCtx,
		ctx:      ctx,
		cancel:   cancel,
		services: runtime.NewServiceRegistry(),
		stop:     make(chan struct{}),
	}

	if err := node.startDB(); err != nil {
		cancel()
		return nil, err
	}
	node.startRedis()

	if err := node.registerServices(); err != nil {
		cancel()
		return nil, err
	}
	return node, nil
}

// applyConfigOverrides folds the per-deployment flag and environment
// overrides into the platform config. Flags carry their env bindings, so
// MAX_CONTRACTS_{STAGE} and FLEET_RISK_INTERVAL_MS land here too.
func applyConfigOverrides(cliCtx *cli.Context) {
	c := params.Platform().Copy()
	changed := false
	if cliCtx.IsSet(flags.FleetRiskIntervalFlag.Name) {
		c.FleetCheckInterval = time.Duration(cliCtx.Int(flags.FleetRiskIntervalFlag.Name)) * time.Millisecond
		changed = true
	}
	caps := []struct {
		flag *cli.IntFlag
		dst  *int
	}{
		{flags.MaxContractsTrialsFlag, &c.MaxContractsTrials},
		{flags.MaxContractsPaperFlag, &c.MaxContractsPaper},
		{flags.MaxContractsShadowFlag, &c.MaxContractsShadow},
		{flags.MaxContractsCanaryFlag, &c.MaxContractsCanary},
		{flags.MaxContractsLiveFlag, &c.MaxContractsLive},
	}
	for _, o := range caps {
		if cliCtx.IsSet(o.flag.Name) {
			*o.dst = cliCtx.Int(o.flag.Name)
			changed = true
		}
	}
	if changed {
		params.OverridePlatformConfig(c)
	}
}

func (n *PlatformNode) startDB() error {
	dataDir := n.cliCtx.String(flags.DataDirFlag.Name)
	store, err := db.NewDB(dataDir)
	if err != nil {
		return errors.Wrap(err, "could not open database")
	}
	if n.cliCtx.Bool(flags.ClearDB.Name) {
		log.Warning("Removing database")
		if err := store.ClearDB(); err != nil {
			return errors.Wrap(err, "could not clear database")
		}
	}
	log.WithField("database-path", store.DatabasePath()).Info("Checking DB")
	n.db = store
	return nil
}

// startRedis connects the shared cache client. No redis address means the
// bar cache runs fail-open against the provider and idempotency falls back
// to the in-memory store; both are correct, just not shared across workers.
func (n *PlatformNode) startRedis() {
	addr := n.cliCtx.String(flags.RedisAddrFlag.Name)
	if addr == "" {
		log.Warn("No redis address configured; bar cache and idempotency store run in-process only")
		return
	}
	n.redis = redis.NewClient(&redis.Options{Addr: addr})
	log.WithField("addr", addr).Info("Connected shared redis")
}

func (n *PlatformNode) registerServices() error {
	audits := audit.New(n.db)

	// Market data plane.
	var provider bars.Provider
	if key := n.cliCtx.String(flags.DatabentoKeyFlag.Name); key != "" {
		provider = broker.NewGuardedProvider(bars.NewDatabentoProvider(key))
	}
	var cache *bars.Cache
	if n.redis != nil && provider != nil {
		var err error
		if cache, err = bars.NewCache(n.redis, provider); err != nil {
			return errors.Wrap(err, "could not build bar cache")
		}
		if err := n.services.RegisterService(bars.NewStatsReporter(n.ctx, cache, statsReportInterval)); err != nil {
			return err
		}
	}
	executor := backtest.NewExecutor(n.db, cache, provider)

	// Regime detection and evolution ride the shared bar cache. Without one
	// the engine still breeds, it just cannot pick regime-aware mutations.
	var detector *regime.Detector
	if cache != nil {
		detector = regime.NewDetector(cache, nil)
	}
	evolver := evolution.NewEngine(n.db, audits, detector)

	// Broker adapter with heartbeat; paper venue unless FIX is wired.
	brokerSvc := broker.NewService(n.ctx, nil)
	if err := n.services.RegisterService(brokerSvc); err != nil {
		return err
	}

	// Risk engine; the broker service is the EMERGENCY liquidation path.
	riskSvc := risk.NewService(n.ctx, &risk.Config{
		Database:   n.db,
		Audit:      audits,
		Liquidator: brokerSvc,
	})
	if err := n.services.RegisterService(riskSvc); err != nil {
		return err
	}

	// Stage engine and governance.
	stageSvc := stage.NewService(n.ctx, &stage.Config{Database: n.db, Audit: audits})
	if err := n.services.RegisterService(stageSvc); err != nil {
		return err
	}

	// Idempotency store and its TTL sweeper.
	var idemStore idempotency.Store
	if n.redis != nil {
		idemStore = idempotency.NewRedisStore(n.redis)
	} else {
		idemStore = idempotency.NewMemoryStore()
	}
	if err := n.services.RegisterService(idempotency.NewService(n.ctx, idemStore)); err != nil {
		return err
	}

	// REST surface.
	rpcAddr := fmt.Sprintf("%s:%d", n.cliCtx.String(flags.RPCHost.Name), n.cliCtx.Int(flags.RPCPort.Name))
	rpcSvc := rpc.NewService(&rpc.Config{
		Addr:        rpcAddr,
		Database:    n.db,
		Audit:       audits,
		Executor:    executor,
		Evolution:   evolver,
		Governance:  stageSvc.Governance(),
		Fleet:       riskSvc.Fleet(),
		Idempotency: idemStore,
	})
	if err := n.services.RegisterService(rpcSvc); err != nil {
		return err
	}

	if !n.cliCtx.Bool(flags.DisableMonitoringFlag.Name) {
		monitoringAddr := fmt.Sprintf("%s:%d",
			n.cliCtx.String(flags.MonitoringHostFlag.Name), n.cliCtx.Int(flags.MonitoringPortFlag.Name))
		if err := n.services.RegisterService(prometheus.NewService(monitoringAddr, n.services)); err != nil {
			return err
		}
	}
	return nil
}

// Start the node and kick off every registered service.
func (n *PlatformNode) Start() {
	n.lock.Lock()
	n.services.StartAll()
	n.lock.Unlock()
	log.Info("Platform node started")

	stop := n.stop
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigc)
		<-sigc
		log.Info("Got interrupt, shutting down...")
		go n.Close()
		for i := 10; i > 0; i-- {
			<-sigc
			if i > 1 {
				log.WithField("times", i-1).Info("Already shutting down, interrupt more to panic")
			}
		}
		panic("Panic closing the platform node")
	}()

	// Wait for stop channel to be closed.
	<-stop
}

// Close handles graceful shutdown of the system.
func (n *PlatformNode) Close() {
	n.lock.Lock()
	defer n.lock.Unlock()

	log.Info("Stopping platform node")
	n.services.StopAll()
	n.cancel()
	if err := n.db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}
	if n.redis != nil {
		if err := n.redis.Close(); err != nil {
			log.WithError(err).Error("Failed to close redis client")
		}
	}
	close(n.stop)
}
