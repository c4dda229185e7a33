package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"nftstake/config"
	"nftstake/core/events"
	"nftstake/core/genesis"
	"nftstake/core/state"
	"nftstake/gateway/auth"
	"nftstake/native/common"
	"nftstake/native/custody"
	"nftstake/native/staking"
	"nftstake/observability/eventlog"
	"nftstake/observability/metrics"
	"nftstake/services/stakingd/host"
	"nftstake/storage"
)

const nonceWindow = 10 * time.Minute

// Node owns the ledger, its storage and every event sink.
type Node struct {
	Config      *config.Config
	DB          storage.Database
	Store       *state.Store
	Vault       *custody.Vault
	Engine      *staking.Engine
	Host        *host.Host
	Pauses      *common.PauseSet
	Broadcaster *events.Broadcaster
	Archive     *eventlog.Archive
	Login       *auth.Authenticator
	Logger      *slog.Logger
}

// New opens storage and wires the engine. Extra host options (such as a
// pinned clock) are forwarded to the host.
func New(cfg *config.Config, logger *slog.Logger, opts ...host.Option) (*Node, error) {
	if cfg == nil {
		return nil, errors.New("node: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	params, err := cfg.StakingParams()
	if err != nil {
		return nil, err
	}
	custodyAccount, err := cfg.CustodyAccount()
	if err != nil {
		return nil, err
	}

	var db storage.Database
	switch cfg.Backend {
	case config.BackendMemory:
		db = storage.NewMemDB()
	case config.BackendLevelDB:
		db, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			return nil, fmt.Errorf("node: open leveldb: %w", err)
		}
	default:
		return nil, fmt.Errorf("node: unknown backend %q", cfg.Backend)
	}

	n := &Node{
		Config:      cfg,
		DB:          db,
		Store:       state.NewStore(db),
		Vault:       custody.NewVault(custodyAccount),
		Pauses:      common.NewPauseSet(cfg.PausedModules...),
		Broadcaster: events.NewBroadcaster(0),
		Logger:      logger,
	}

	if cfg.Archive.Driver != config.ArchiveDisabled {
		n.Archive, err = eventlog.Open(cfg.Archive.Driver, cfg.Archive.DSN, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	sinks := events.Fanout{n.Broadcaster, logEmitter{logger: logger.With("component", "events")}}
	if cfg.Observability.MetricsEnabled {
		sinks = append(sinks, metrics.Staking())
	}
	if n.Archive != nil {
		sinks = append(sinks, n.Archive)
	}

	n.Engine = staking.NewEngine(params)
	n.Engine.SetState(n.Store)
	n.Engine.SetCustody(n.Vault)
	n.Engine.SetPauses(n.Pauses)
	n.Engine.SetEmitter(sinks)
	n.Engine.SetLogger(logger)
	n.Host = host.New(n.Engine, append([]host.Option{host.WithLogger(logger)}, opts...)...)

	skew := time.Duration(cfg.Auth.ClockSkewSecs) * time.Second
	n.Login = auth.NewAuthenticator(skew, nonceWindow, 0, nil, auth.NewStoreNoncePersistence(db))
	if err := n.Login.HydrateNonces(context.Background(), time.Now().Add(-nonceWindow)); err != nil {
		n.Close()
		return nil, err
	}
	return n, nil
}

// ApplyGenesis seeds the store from the configured genesis file, if any.
func (n *Node) ApplyGenesis() (bool, error) {
	if n.Config.GenesisFile == "" {
		return false, nil
	}
	spec, raw, err := genesis.Load(n.Config.GenesisFile)
	if err != nil {
		return false, err
	}
	return n.ApplyGenesisDocument(spec, raw)
}

// ApplyGenesisDocument seeds the store from an already parsed document.
func (n *Node) ApplyGenesisDocument(spec *genesis.Spec, raw []byte) (bool, error) {
	applied, err := genesis.Apply(spec, raw, n.Store, n.Vault, n.Engine)
	if err != nil {
		return applied, err
	}
	if applied {
		n.Logger.Info("genesis applied", "owner_set", spec.Owner != "")
	}
	return applied, nil
}

// SyncMetrics seeds the ledger gauges from stored state.
func (n *Node) SyncMetrics() error {
	if !n.Config.Observability.MetricsEnabled {
		return nil
	}
	return n.Host.Read(func(e *staking.Engine, _ int64) error {
		gov, err := e.Governance()
		if err != nil {
			return err
		}
		metrics.Staking().Sync(gov.TotalStaked, gov.RewardRate, gov.Paused)
		return nil
	})
}

// Close releases the archive and the database.
func (n *Node) Close() error {
	var firstErr error
	if n.Archive != nil {
		if err := n.Archive.Close(); err != nil && !errors.Is(err, eventlog.ErrArchiveClosed) {
			firstErr = err
		}
	}
	if n.DB != nil {
		n.DB.Close()
	}
	return firstErr
}

// logEmitter writes every committed event to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	rec, ok := evt.(*events.Record)
	if !ok || rec == nil {
		return
	}
	args := make([]any, 0, 2+2*len(rec.Attributes))
	args = append(args, "type", rec.Type, "time", rec.Time)
	for k, v := range rec.Attributes {
		args = append(args, k, v)
	}
	l.logger.Info("ledger event", args...)
}
