package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gossipnetworks/gossamer/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultPeersFile is the default name of the file containing the seed
	// peers
	DefaultPeersFile = "peers.json"
)

// Default configuration values.
const (
	DefaultLogLevel          = "debug"
	DefaultBindAddr          = "127.0.0.1:1337"
	DefaultServiceAddr       = "127.0.0.1:8000"
	DefaultProbeInterval     = 500 * time.Millisecond
	DefaultProbeTimeout      = 200 * time.Millisecond
	DefaultIndirectProbes    = 3
	DefaultSuspicionTimeout  = 3000 * time.Millisecond
	DefaultReconcileInterval = 10000 * time.Millisecond
	DefaultTombstoneTimeout  = 30000 * time.Millisecond
	DefaultCacheTTL          = 30000 * time.Millisecond
	DefaultPiggybackLimit    = 4
	DefaultRetransmitMult    = 4
	DefaultFanout            = 4
	DefaultMaxMsgsPerSec     = float64(0)
	DefaultMsgBurst          = 100
	DefaultQuorumSize        = 1
	DefaultTCPTimeout        = 1000 * time.Millisecond
	DefaultMaxPool           = 2
	DefaultStore             = false
)

// Config contains all the configuration properties of a gossamer node.
type Config struct {
	// DataDir is the top-level directory containing gossamer configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates the log output to the given file.
	LogFile string `mapstructure:"log-file"`

	// BindAddr is the local address:port where this node gossips with other
	// nodes. In some cases, there may be a routable address that cannot be
	// bound. Use AdvertiseAddr to advertise a different address to support
	// this. If this address is not routable, the node will be in a constant
	// flapping state as other nodes will treat the non-routability as a
	// failure.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// ProbeInterval is the period of the failure detector's probe timer.
	ProbeInterval time.Duration `mapstructure:"probe-interval"`

	// ProbeTimeout bounds the wait for a direct ack; the indirect round fits
	// in a second window of the same length.
	ProbeTimeout time.Duration `mapstructure:"probe-timeout"`

	// IndirectProbes is the number of relays asked to ping an unresponsive
	// member on our behalf.
	IndirectProbes int `mapstructure:"indirect-probes"`

	// SuspicionTimeout is how long a Suspect member has to refute before
	// being declared Dead.
	SuspicionTimeout time.Duration `mapstructure:"suspicion-timeout"`

	// ReconcileInterval is the period of the anti-entropy timer.
	ReconcileInterval time.Duration `mapstructure:"reconcile-interval"`

	// TombstoneTimeout is how long Dead members are retained before being
	// purged. It must outlast the gossip retransmit window.
	TombstoneTimeout time.Duration `mapstructure:"tombstone-timeout"`

	// CacheTTL is how long broadcast payloads are cached for pulls.
	CacheTTL time.Duration `mapstructure:"cache-ttl"`

	// PiggybackLimit is the max number of membership updates riding on a
	// single probe or ack.
	PiggybackLimit int `mapstructure:"piggyback-limit"`

	// RetransmitMult scales the per-update retransmit budget,
	// RetransmitMult x log2(N).
	RetransmitMult int `mapstructure:"retransmit-mult"`

	// Fanout bounds the initial eager peer set of the broadcast tree.
	Fanout int `mapstructure:"fanout"`

	// MaxMsgsPerSec is the per-peer inbound rate limit. Zero disables
	// limiting.
	MaxMsgsPerSec float64 `mapstructure:"max-msgs-per-sec"`

	// MsgBurst is the per-peer burst allowance of the rate limiter.
	MsgBurst int `mapstructure:"msg-burst"`

	// QuorumSize is the number of independent Suspect/Dead reports required
	// before a Dead verdict is surfaced to subscribers. One or less disables
	// corroboration.
	QuorumSize int `mapstructure:"quorum-size"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of gossip RPC connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Store activates persistent storage of last-known members.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Bootstrap determines whether to reload last-known members from an
	// existing database. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:           DefaultDataDir(),
		LogLevel:          DefaultLogLevel,
		BindAddr:          DefaultBindAddr,
		ServiceAddr:       DefaultServiceAddr,
		ProbeInterval:     DefaultProbeInterval,
		ProbeTimeout:      DefaultProbeTimeout,
		IndirectProbes:    DefaultIndirectProbes,
		SuspicionTimeout:  DefaultSuspicionTimeout,
		ReconcileInterval: DefaultReconcileInterval,
		TombstoneTimeout:  DefaultTombstoneTimeout,
		CacheTTL:          DefaultCacheTTL,
		PiggybackLimit:    DefaultPiggybackLimit,
		RetransmitMult:    DefaultRetransmitMult,
		Fanout:            DefaultFanout,
		MaxMsgsPerSec:     DefaultMaxMsgsPerSec,
		MsgBurst:          DefaultMsgBurst,
		QuorumSize:        DefaultQuorumSize,
		MaxPool:           DefaultMaxPool,
		TCPTimeout:        DefaultTCPTimeout,
		Store:             DefaultStore,
		DatabaseDir:       DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level gossamer directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitly
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Logger returns a formatted logrus Entry, with prefix set to "gossamer".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, level := range logrus.AllLevels {
				if level <= c.logger.Level {
					pathMap[level] = c.LogFile
				}
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "gossamer")
}

// BaseLogger returns the underlying logger built by Logger().
func (c *Config) BaseLogger() *logrus.Logger {
	c.Logger()
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level gossamer
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Gossamer")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Gossamer")
		} else {
			return filepath.Join(home, ".gossamer")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
