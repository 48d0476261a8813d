package config

import (
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/sherwood-quant/core/execution"
	"github.com/sherwood-quant/core/queue"
	"github.com/sherwood-quant/core/regime"
)

// QueueTunables mirrors queue.Config minus the per-account Account field,
// which the caller supplies when building the real queue.Config.
type QueueTunables struct {
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	ZombieTimeout time.Duration
}

// ExecutionTunables mirrors execution.Config minus Account.
type ExecutionTunables struct {
	FeePct            float64
	PriceDeviationPct float64
	MinUsableFunds    float64
	SameSideDailyCap  int
	Coalesce          bool
}

// TunablesFile is the TOML-decoded shape of the long domain tunable
// table: regime classification inputs, OE sizing/risk knobs, the
// Kelly overlay gate, the backup-order weight table, and queue retry
// policy. Structural process settings (trading mode, storage, provider
// credentials) stay in Config/Load instead, since they come from the
// environment rather than a hot-reloadable file.
type TunablesFile struct {
	Regime      regime.Config               `mapstructure:"Regime"`
	Execution   ExecutionTunables           `mapstructure:"Execution"`
	Kelly       execution.KellyConfig       `mapstructure:"Kelly"`
	BackupOrder execution.BackupOrderConfig `mapstructure:"BackupOrder"`
	Queue       QueueTunables               `mapstructure:"Queue"`
}

// defaultTunables seeds every knob from its package's own policy
// default, so a missing or partial tunables.toml still produces a fully
// usable table.
func defaultTunables() TunablesFile {
	execDefault := execution.DefaultConfig("")
	queueDefault := queue.DefaultConfig("")
	return TunablesFile{
		Regime: regime.DefaultConfig(),
		Execution: ExecutionTunables{
			FeePct:            execDefault.FeePct,
			PriceDeviationPct: execDefault.PriceDeviationPct,
			MinUsableFunds:    execDefault.MinUsableFunds,
			SameSideDailyCap:  execDefault.SameSideDailyCap,
			Coalesce:          execDefault.Coalesce,
		},
		Kelly:       execution.DefaultKellyConfig(),
		BackupOrder: execution.DefaultBackupOrderConfig(),
		Queue: QueueTunables{
			MaxRetries:    queueDefault.MaxRetries,
			BaseBackoff:   queueDefault.BaseBackoff,
			MaxBackoff:    queueDefault.MaxBackoff,
			ZombieTimeout: queueDefault.ZombieTimeout,
		},
	}
}

// Manager hot-reloads TunablesFile from a TOML file on disk: SG/OE pick
// up a tuning change (a new regime symbol, a tightened risk threshold)
// on the next tick without a process restart.
type Manager struct {
	mu       sync.RWMutex
	cfg      TunablesFile
	v        *viper.Viper
	onChange func(TunablesFile)
}

// NewManager loads path as a TOML tunables file, seeding every field
// from defaultTunables() first so a missing file still yields a usable
// Manager, then watches the file for changes. onChange, if non-nil, is
// invoked with the freshly decoded table every time the file changes.
func NewManager(path string, onChange func(TunablesFile)) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	setDefaults(v, defaultTunables())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Warn().Str("path", path).Msg("tunables file not found, using policy defaults")
	}

	var cfg TunablesFile
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg, v: v, onChange: onChange}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("tunables file changed, reloading")
		m.reload()
	})

	return m, nil
}

// setDefaults registers d's fields with v so viper.ReadInConfig + an
// absent or partial TOML file still leaves every knob populated.
func setDefaults(v *viper.Viper, d TunablesFile) {
	v.SetDefault("Regime.IndexSymbols", d.Regime.IndexSymbols)
	v.SetDefault("Regime.InverseSymbols", d.Regime.InverseSymbols)
	v.SetDefault("Regime.MAPeriod", d.Regime.MAPeriod)
	v.SetDefault("Regime.BullThreshold", d.Regime.BullThreshold)
	v.SetDefault("Regime.BearThreshold", d.Regime.BearThreshold)
	v.SetDefault("Regime.OpeningRangeMinutes", d.Regime.OpeningRangeMinutes)
	v.SetDefault("Regime.ExpandThreshold", d.Regime.ExpandThreshold)
	v.SetDefault("Regime.BreakoutBuffer", d.Regime.BreakoutBuffer)

	v.SetDefault("Execution.FeePct", d.Execution.FeePct)
	v.SetDefault("Execution.PriceDeviationPct", d.Execution.PriceDeviationPct)
	v.SetDefault("Execution.MinUsableFunds", d.Execution.MinUsableFunds)
	v.SetDefault("Execution.SameSideDailyCap", d.Execution.SameSideDailyCap)
	v.SetDefault("Execution.Coalesce", d.Execution.Coalesce)

	v.SetDefault("Kelly.Enabled", d.Kelly.Enabled)
	v.SetDefault("Kelly.MinTrades", d.Kelly.MinTrades)
	v.SetDefault("Kelly.MinWinRate", d.Kelly.MinWinRate)
	v.SetDefault("Kelly.ConservativeFactor", d.Kelly.ConservativeFactor)
	v.SetDefault("Kelly.MaxNetAssetsPct", d.Kelly.MaxNetAssetsPct)

	v.SetDefault("BackupOrder.RiskThreshold", d.BackupOrder.RiskThreshold)
	v.SetDefault("BackupOrder.ATRWeight", d.BackupOrder.ATRWeight)
	v.SetDefault("BackupOrder.ATRRatioHigh", d.BackupOrder.ATRRatioHigh)
	v.SetDefault("BackupOrder.ATRRatioMedium", d.BackupOrder.ATRRatioMedium)
	v.SetDefault("BackupOrder.ATRRatioLow", d.BackupOrder.ATRRatioLow)
	v.SetDefault("BackupOrder.PriceWeight", d.BackupOrder.PriceWeight)
	v.SetDefault("BackupOrder.SignalWeight", d.BackupOrder.SignalWeight)
	v.SetDefault("BackupOrder.WeakSignalThreshold", d.BackupOrder.WeakSignalThreshold)
	v.SetDefault("BackupOrder.StopLossWeight", d.BackupOrder.StopLossWeight)
	v.SetDefault("BackupOrder.WideStopLossPct", d.BackupOrder.WideStopLossPct)
	v.SetDefault("BackupOrder.HighValueThreshold", d.BackupOrder.HighValueThreshold)

	v.SetDefault("Queue.MaxRetries", d.Queue.MaxRetries)
	v.SetDefault("Queue.BaseBackoff", d.Queue.BaseBackoff)
	v.SetDefault("Queue.MaxBackoff", d.Queue.MaxBackoff)
	v.SetDefault("Queue.ZombieTimeout", d.Queue.ZombieTimeout)
}

// reload re-decodes the file viper is watching and swaps it in; a
// decode failure is logged and the previous table is kept, so a typo in
// a hand-edited tunables.toml can't crash a running process.
func (m *Manager) reload() {
	var fresh TunablesFile
	if err := m.v.Unmarshal(&fresh); err != nil {
		log.Error().Err(err).Msg("tunables reload: decode failed, keeping previous table")
		return
	}

	m.mu.Lock()
	m.cfg = fresh
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(fresh)
	}
}

// Get returns the current tunable table (thread-safe).
func (m *Manager) Get() TunablesFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// RegimeConfig returns the current regime classifier inputs.
func (m *Manager) RegimeConfig() regime.Config {
	return m.Get().Regime
}

// KellyConfig returns the current Kelly-overlay gate.
func (m *Manager) KellyConfig() execution.KellyConfig {
	return m.Get().Kelly
}

// BackupOrderConfig returns the current backup-order weight table.
func (m *Manager) BackupOrderConfig() execution.BackupOrderConfig {
	return m.Get().BackupOrder
}

// ExecutionConfig builds an execution.Config for account from the
// current sizing/risk tunables.
func (m *Manager) ExecutionConfig(account string) execution.Config {
	t := m.Get().Execution
	return execution.Config{
		Account:           account,
		FeePct:            t.FeePct,
		PriceDeviationPct: t.PriceDeviationPct,
		MinUsableFunds:    t.MinUsableFunds,
		SameSideDailyCap:  t.SameSideDailyCap,
		Coalesce:          t.Coalesce,
	}
}

// QueueConfig builds a queue.Config for account from the current retry
// policy tunables.
func (m *Manager) QueueConfig(account string) queue.Config {
	t := m.Get().Queue
	return queue.Config{
		Account:       account,
		MaxRetries:    t.MaxRetries,
		BaseBackoff:   t.BaseBackoff,
		MaxBackoff:    t.MaxBackoff,
		ZombieTimeout: t.ZombieTimeout,
	}
}
