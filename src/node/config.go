package node

import (
	"testing"
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/sirupsen/logrus"
)

// Config holds the protocol parameters of a node. The probe path assumes
// ProbeTimeout < ProbeInterval and SuspicionTimeout spanning several probe
// rounds; nothing enforces it.
type Config struct {
	ProbeInterval     time.Duration `mapstructure:"probe-interval"`
	ProbeTimeout      time.Duration `mapstructure:"probe-timeout"`
	IndirectProbes    int           `mapstructure:"indirect-probes"`
	SuspicionTimeout  time.Duration `mapstructure:"suspicion-timeout"`
	ReconcileInterval time.Duration `mapstructure:"reconcile-interval"`
	TombstoneTimeout  time.Duration `mapstructure:"tombstone-timeout"`
	CacheTTL          time.Duration `mapstructure:"cache-ttl"`
	PiggybackLimit    int           `mapstructure:"piggyback-limit"`
	RetransmitMult    int           `mapstructure:"retransmit-mult"`
	Fanout            int           `mapstructure:"fanout"`
	MaxMsgsPerSec     float64       `mapstructure:"max-msgs-per-sec"`
	MsgBurst          int           `mapstructure:"msg-burst"`
	QuorumSize        int           `mapstructure:"quorum-size"`
	Bootstrap         bool          `mapstructure:"bootstrap"`
	Moniker           string        `mapstructure:"moniker"`

	Logger *logrus.Logger
	Clock  common.Clock
}

// NewConfig ...
func NewConfig(probeInterval time.Duration,
	probeTimeout time.Duration,
	suspicionTimeout time.Duration,
	reconcileInterval time.Duration,
	logger *logrus.Logger) *Config {

	conf := DefaultConfig()

	conf.ProbeInterval = probeInterval
	conf.ProbeTimeout = probeTimeout
	conf.SuspicionTimeout = suspicionTimeout
	conf.ReconcileInterval = reconcileInterval
	conf.Logger = logger

	return conf
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		ProbeInterval:     500 * time.Millisecond,
		ProbeTimeout:      200 * time.Millisecond,
		IndirectProbes:    3,
		SuspicionTimeout:  3 * time.Second,
		ReconcileInterval: 10 * time.Second,
		TombstoneTimeout:  30 * time.Second,
		CacheTTL:          30 * time.Second,
		PiggybackLimit:    4,
		RetransmitMult:    4,
		Fanout:            4,
		MaxMsgsPerSec:     0,
		MsgBurst:          100,
		QuorumSize:        1,
		Logger:            logger,
		Clock:             common.NewRealClock(),
	}
}

// TestConfig returns a config with aggressive timing suitable for in-memory
// tests, logging through the test runner.
func TestConfig(t *testing.T) *Config {
	config := DefaultConfig()

	config.ProbeInterval = 20 * time.Millisecond
	config.ProbeTimeout = 10 * time.Millisecond
	config.SuspicionTimeout = 100 * time.Millisecond
	config.ReconcileInterval = 50 * time.Millisecond
	config.TombstoneTimeout = time.Second
	config.Logger = common.NewTestLogger(t)

	return config
}
