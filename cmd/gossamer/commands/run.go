package commands

import (
	"github.com/gossipnetworks/gossamer/src/gossamer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a gossamer node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runGossamer,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runGossamer(cmd *cobra.Command, args []string) error {
	engine := gossamer.NewGossamer(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Optional file where logs are also written")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for gossamer node")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for gossamer node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Do not serve the HTTP API")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")
	cmd.Flags().Bool("bootstrap", _config.Bootstrap, "Reload last-known members from database")

	// Protocol
	cmd.Flags().Duration("probe-interval", _config.ProbeInterval, "Time between failure detector probes")
	cmd.Flags().Duration("probe-timeout", _config.ProbeTimeout, "Timeout of a direct probe")
	cmd.Flags().Int("indirect-probes", _config.IndirectProbes, "Number of relays for indirect probes")
	cmd.Flags().Duration("suspicion-timeout", _config.SuspicionTimeout, "Time before a Suspect member is declared Dead")
	cmd.Flags().Duration("reconcile-interval", _config.ReconcileInterval, "Time between anti-entropy exchanges")
	cmd.Flags().Duration("tombstone-timeout", _config.TombstoneTimeout, "Time Dead members are retained")
	cmd.Flags().Duration("cache-ttl", _config.CacheTTL, "Time broadcast payloads are cached")
	cmd.Flags().Int("piggyback-limit", _config.PiggybackLimit, "Max membership updates per probe message")
	cmd.Flags().Int("retransmit-mult", _config.RetransmitMult, "Retransmit multiplier for membership updates")
	cmd.Flags().Int("fanout", _config.Fanout, "Max initial eager peers of the broadcast tree")
	cmd.Flags().Float64("max-msgs-per-sec", _config.MaxMsgsPerSec, "Per-peer inbound rate limit (0 = unlimited)")
	cmd.Flags().Int("msg-burst", _config.MsgBurst, "Per-peer burst allowance of the rate limiter")
	cmd.Flags().Int("quorum-size", _config.QuorumSize, "Independent reports required to confirm a Dead verdict")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"gossamer.DataDir":           _config.DataDir,
		"gossamer.BindAddr":          _config.BindAddr,
		"gossamer.AdvertiseAddr":     _config.AdvertiseAddr,
		"gossamer.NoService":         _config.NoService,
		"gossamer.ServiceAddr":       _config.ServiceAddr,
		"gossamer.MaxPool":           _config.MaxPool,
		"gossamer.Store":             _config.Store,
		"gossamer.LogLevel":          _config.LogLevel,
		"gossamer.Moniker":           _config.Moniker,
		"gossamer.ProbeInterval":     _config.ProbeInterval,
		"gossamer.ProbeTimeout":      _config.ProbeTimeout,
		"gossamer.IndirectProbes":    _config.IndirectProbes,
		"gossamer.SuspicionTimeout":  _config.SuspicionTimeout,
		"gossamer.ReconcileInterval": _config.ReconcileInterval,
		"gossamer.TombstoneTimeout":  _config.TombstoneTimeout,
		"gossamer.PiggybackLimit":    _config.PiggybackLimit,
		"gossamer.RetransmitMult":    _config.RetransmitMult,
		"gossamer.Fanout":            _config.Fanout,
		"gossamer.QuorumSize":        _config.QuorumSize,
		"gossamer.TCPTimeout":        _config.TCPTimeout,
	}

	if _config.Store {
		logFields["gossamer.DatabaseDir"] = _config.DatabaseDir
		logFields["gossamer.Bootstrap"] = _config.Bootstrap
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/gossamer.toml (.json, .yaml also work)
	viper.SetConfigName("gossamer")      // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
