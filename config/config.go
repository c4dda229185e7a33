package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"nftstake/crypto"
	"nftstake/native/custody"
	"nftstake/native/staking"
)

// Storage backends.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
)

// Event archive drivers.
const (
	ArchiveDisabled = ""
	ArchiveSQLite   = "sqlite"
	ArchivePostgres = "postgres"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STAKINGD_"

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	Backend       string `toml:"Backend"`
	GenesisFile   string `toml:"GenesisFile"`
	Environment   string `toml:"Environment"`
	// PausedModules lists modules held by the operator kill switch at boot.
	PausedModules []string `toml:"PausedModules"`
	// CORSAllowedOrigins lists browser origins; empty allows any.
	CORSAllowedOrigins []string `toml:"CORSAllowedOrigins"`

	Staking       StakingConfig       `toml:"staking"`
	Auth          AuthConfig          `toml:"auth"`
	RateLimit     RateLimitConfig     `toml:"rate_limit"`
	Observability ObservabilityConfig `toml:"observability"`
	Archive       ArchiveConfig       `toml:"archive"`
}

type StakingConfig struct {
	StakeAsset          string `toml:"StakeAsset"`
	RewardAsset         string `toml:"RewardAsset"`
	VerifyAttachedValue bool   `toml:"VerifyAttachedValue"`
	MaxBatchSize        int    `toml:"MaxBatchSize"`
	PayoutMode          string `toml:"PayoutMode"`
	RewardBasis         string `toml:"RewardBasis"`
	AdminTimelockSecs   uint64 `toml:"AdminTimelockSeconds"`
	// CustodyAccount holds staked items and the reward reserve. Empty derives
	// the module account.
	CustodyAccount string `toml:"CustodyAccount"`

	RewardRate             uint64 `toml:"RewardRate"`
	MinLockPeriodSecs      uint64 `toml:"MinLockPeriodSeconds"`
	WithdrawalCooldownSecs uint64 `toml:"WithdrawalCooldownSeconds"`
	AllowEarlyUnstake      bool   `toml:"AllowEarlyUnstake"`
	EarlyUnstakePenaltyBps uint64 `toml:"EarlyUnstakePenaltyBps"`
}

type AuthConfig struct {
	HMACSecret    string `toml:"HMACSecret"`
	HMACSecretEnv string `toml:"HMACSecretEnv"`
	Issuer        string `toml:"Issuer"`
	Audience      string `toml:"Audience"`
	// ClockSkewSecs is the leeway applied to token and login timestamps.
	ClockSkewSecs uint64 `toml:"ClockSkewSeconds"`
	TokenTTLSecs  uint64 `toml:"TokenTTLSeconds"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type ObservabilityConfig struct {
	ServiceName    string `toml:"ServiceName"`
	LogFile        string `toml:"LogFile"`
	LogMaxSizeMB   int    `toml:"LogMaxSizeMB"`
	LogMaxBackups  int    `toml:"LogMaxBackups"`
	MetricsEnabled bool   `toml:"MetricsEnabled"`
	OTLPEndpoint   string `toml:"OTLPEndpoint"`
	OTLPInsecure   bool   `toml:"OTLPInsecure"`
	// OTLPHeaders is a comma-separated key=value list sent with every export.
	OTLPHeaders      string  `toml:"OTLPHeaders"`
	TraceSampleRatio float64 `toml:"TraceSampleRatio"`
}

type ArchiveConfig struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly written default.
func Load(path string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = Default()
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the stock node configuration.
func Default() *Config {
	params := staking.DefaultParams()
	return &Config{
		ListenAddress: ":8645",
		DataDir:       "./stakingd-data",
		Backend:       BackendLevelDB,
		Environment:   "local",
		PausedModules: []string{},
		Staking: StakingConfig{
			StakeAsset:             params.StakeAsset,
			RewardAsset:            params.RewardAsset,
			VerifyAttachedValue:    params.VerifyAttachedValue,
			MaxBatchSize:           params.MaxBatchSize,
			PayoutMode:             string(params.PayoutMode),
			RewardBasis:            string(params.RewardBasis),
			AdminTimelockSecs:      params.AdminTimelock,
			RewardRate:             params.RewardRate,
			MinLockPeriodSecs:      params.MinLockPeriod,
			WithdrawalCooldownSecs: params.WithdrawalCooldown,
			AllowEarlyUnstake:      params.AllowEarlyUnstake,
			EarlyUnstakePenaltyBps: params.EarlyUnstakePenaltyBps,
		},
		Auth: AuthConfig{
			HMACSecretEnv: EnvPrefix + "JWT_SECRET",
			Issuer:        "stakingd",
			Audience:      "stakingd-api",
			ClockSkewSecs: 30,
			TokenTTLSecs:  3600,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
		Observability: ObservabilityConfig{
			ServiceName:    "stakingd",
			LogMaxSizeMB:   100,
			LogMaxBackups:  5,
			MetricsEnabled: true,
		},
	}
}

// createDefault creates and saves a default configuration file with a fresh
// token secret.
func createDefault(path string) (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.Auth.HMACSecret = hex.EncodeToString(secret)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays STAKINGD_* variables onto the decoded file.
func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LISTEN_ADDRESS", &c.ListenAddress)
	str("DATA_DIR", &c.DataDir)
	str("BACKEND", &c.Backend)
	str("GENESIS_FILE", &c.GenesisFile)
	str("ENV", &c.Environment)
	str("ARCHIVE_DRIVER", &c.Archive.Driver)
	str("ARCHIVE_DSN", &c.Archive.DSN)
	str("OTLP_ENDPOINT", &c.Observability.OTLPEndpoint)
	str("LOG_FILE", &c.Observability.LogFile)
	if v, ok := lookup(EnvPrefix + "PAUSED_MODULES"); ok {
		c.PausedModules = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "REWARD_RATE"); ok {
		rate, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sREWARD_RATE: %w", EnvPrefix, err)
		}
		c.Staking.RewardRate = rate
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_RPS"); ok {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		c.RateLimit.RequestsPerSecond = rps
	}
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("config: ListenAddress is required")
	}
	switch c.Backend {
	case BackendMemory:
	case BackendLevelDB:
		if strings.TrimSpace(c.DataDir) == "" {
			return errors.New("config: DataDir is required for the leveldb backend")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if _, err := c.StakingParams(); err != nil {
		return fmt.Errorf("config: staking: %w", err)
	}
	if _, err := c.CustodyAccount(); err != nil {
		return err
	}
	if c.Auth.TokenTTLSecs == 0 {
		return errors.New("config: auth: TokenTTLSeconds must be positive")
	}
	if r := c.Observability.TraceSampleRatio; r < 0 || r > 1 {
		return errors.New("config: observability: TraceSampleRatio must be within [0,1]")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate_limit: values must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return errors.New("config: rate_limit: Burst must be positive when limiting")
	}
	switch c.Archive.Driver {
	case ArchiveDisabled:
	case ArchiveSQLite, ArchivePostgres:
		if strings.TrimSpace(c.Archive.DSN) == "" {
			return fmt.Errorf("config: archive: DSN is required for driver %s", c.Archive.Driver)
		}
	default:
		return fmt.Errorf("config: archive: unknown driver %q", c.Archive.Driver)
	}
	return nil
}

// StakingParams converts the staking section into engine parameters.
func (c *Config) StakingParams() (staking.Params, error) {
	s := c.Staking
	params := staking.Params{
		StakeAsset:             strings.TrimSpace(s.StakeAsset),
		RewardAsset:            strings.TrimSpace(s.RewardAsset),
		VerifyAttachedValue:    s.VerifyAttachedValue,
		MaxBatchSize:           s.MaxBatchSize,
		PayoutMode:             staking.PayoutMode(strings.ToLower(strings.TrimSpace(s.PayoutMode))),
		RewardBasis:            staking.RewardBasis(strings.ToLower(strings.TrimSpace(s.RewardBasis))),
		AdminTimelock:          s.AdminTimelockSecs,
		RewardRate:             s.RewardRate,
		MinLockPeriod:          s.MinLockPeriodSecs,
		WithdrawalCooldown:     s.WithdrawalCooldownSecs,
		AllowEarlyUnstake:      s.AllowEarlyUnstake,
		EarlyUnstakePenaltyBps: s.EarlyUnstakePenaltyBps,
	}
	if err := params.Validate(); err != nil {
		return staking.Params{}, err
	}
	return params, nil
}

// CustodyAccount resolves the account holding staked items and the reserve.
func (c *Config) CustodyAccount() (crypto.Address, error) {
	raw := strings.TrimSpace(c.Staking.CustodyAccount)
	if raw == "" {
		return crypto.Address(custody.ModuleAccount(staking.ModuleName)), nil
	}
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("config: staking: CustodyAccount: %w", err)
	}
	if addr.IsZero() {
		return crypto.Address{}, errors.New("config: staking: CustodyAccount must not be zero")
	}
	return addr, nil
}

// TokenSecret returns the HMAC secret used to sign and verify API tokens.
// The environment variable named by HMACSecretEnv wins over the inline value.
func (c *Config) TokenSecret() ([]byte, error) {
	if name := strings.TrimSpace(c.Auth.HMACSecretEnv); name != "" {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return []byte(v), nil
		}
	}
	if v := strings.TrimSpace(c.Auth.HMACSecret); v != "" {
		return []byte(v), nil
	}
	return nil, errors.New("config: auth: no token secret configured")
}
