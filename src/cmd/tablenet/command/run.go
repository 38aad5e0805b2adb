package command

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/tablenet/src/config"
	"github.com/mosaicnetworks/tablenet/src/node"
	"github.com/mosaicnetworks/tablenet/src/table"
	"github.com/mosaicnetworks/tablenet/src/tablenet"
)

//NewHostCmd returns the command that hosts a table
func NewHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "host",
		Short:   "Host a table",
		PreRunE: loadConfig,
		RunE:    runEngine(tablenet.HostMode),
	}
	AddRunFlags(cmd)
	cmd.Flags().Int("deck", _config.Deck, "Number of cards on a fresh table")
	return cmd
}

//NewJoinCmd returns the command that joins the table of a host
func NewJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "join",
		Short:   "Join a hosted table",
		PreRunE: loadConfig,
		RunE:    runEngine(tablenet.JoinMode),
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runEngine(mode tablenet.Mode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := _config.Tablenet.Logger()

		engine := tablenet.NewEngine(&_config.Tablenet)

		if mode == tablenet.HostMode {
			tb, err := newDeckTable(_config.Deck)
			if err != nil {
				return err
			}
			engine.Table = tb
		}

		if err := engine.Init(); err != nil {
			logger.WithError(err).Error("Cannot initialize engine")
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		//Prepare sigCh to relay SIGINT and SIGTERM system calls
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		go func() {
			select {
			case <-sigCh:
				logger.Info("Shutting down")
				cancel()
			case <-ctx.Done():
			}
		}()

		updates := engine.Node.Subscribe()
		go logUpdates(logger, updates)

		if err := engine.Run(ctx, mode); err != nil {
			logger.WithError(err).Error("Stopped")
			return err
		}

		return nil
	}
}

// newDeckTable returns a table holding a deck of the given number of cards.
func newDeckTable(cards int) (*table.Table, error) {
	tb := table.New(table.NewStandardRegistry())

	if cards <= 0 {
		return tb, nil
	}

	if err := tb.Apply(table.AddComponent(table.RootID, "deck", "deck", table.Point{})); err != nil {
		return nil, err
	}
	for i := 0; i < cards; i++ {
		m := table.AddComponent("deck", fmt.Sprintf("card-%d", i), "card", table.Point{})
		if err := tb.Apply(m); err != nil {
			return nil, err
		}
	}
	return tb, nil
}

func logUpdates(logger *logrus.Entry, updates <-chan node.Update) {
	for u := range updates {
		if u.Mutation == nil {
			logger.WithField("revision", u.Revision).Info("Table restored")
			continue
		}
		logger.WithFields(logrus.Fields{
			"revision": u.Revision,
			"player":   u.Origin,
			"mutation": u.Mutation.String(),
		}).Info("Table changed")
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the host and join commands
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Tablenet.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Tablenet.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Tablenet.LogFile, "Also write JSON logs to this file")

	// Table
	cmd.Flags().String("host", _config.Tablenet.HostName, "Host name or IP of the table")
	cmd.Flags().IntP("port", "p", _config.Tablenet.Port, "TCP port of the table")
	cmd.Flags().StringP("name", "n", _config.Tablenet.PlayerName, "Player name")
	cmd.Flags().String("password", _config.Tablenet.Password, "Table password (or TABLENET_PASSWORD)")

	// Network
	cmd.Flags().Duration("handshake-timeout", _config.Tablenet.HandshakeTimeout, "Time allowed to authenticate")
	cmd.Flags().DurationP("dial-timeout", "t", _config.Tablenet.DialTimeout, "TCP dial timeout")
	cmd.Flags().Duration("tick", _config.Tablenet.TickInterval, "Dispatcher tick interval")
	cmd.Flags().Int("inbox-size", _config.Tablenet.InboxSize, "Events buffered per connection")
	cmd.Flags().Int("outbox-size", _config.Tablenet.OutboxSize, "Frames buffered per connection")
	cmd.Flags().Int("max-frame-size", _config.Tablenet.MaxFrameSize, "Largest accepted frame in bytes")

	// Service
	cmd.Flags().Bool("no-service", _config.Tablenet.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Tablenet.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Tablenet.Store, "Keep the mutation journal in badgerDB")
	cmd.Flags().String("db", _config.Tablenet.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("journal-size", _config.Tablenet.JournalSize, "Number of mutations kept in memory for resyncs")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	configFile, err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// keep the password out of the plain config struct
	_config.Tablenet.SealPassword()

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Tablenet.SetDataDir(_config.Tablenet.DataDir)

	logFields := logrus.Fields{
		"tablenet.DataDir":          _config.Tablenet.DataDir,
		"tablenet.HostName":         _config.Tablenet.HostName,
		"tablenet.Port":             _config.Tablenet.Port,
		"tablenet.PlayerName":       _config.Tablenet.PlayerName,
		"tablenet.LogLevel":         _config.Tablenet.LogLevel,
		"tablenet.HandshakeTimeout": _config.Tablenet.HandshakeTimeout,
		"tablenet.DialTimeout":      _config.Tablenet.DialTimeout,
		"tablenet.TickInterval":     _config.Tablenet.TickInterval,
		"tablenet.JournalSize":      _config.Tablenet.JournalSize,
		"tablenet.Store":            _config.Tablenet.Store,
		"tablenet.NoService":        _config.Tablenet.NoService,
		"tablenet.ServiceAddr":      _config.Tablenet.ServiceAddr,
		"Deck":                      _config.Deck,
	}

	if _config.Tablenet.Store {
		logFields["tablenet.DatabaseDir"] = _config.Tablenet.DatabaseDir
	}

	logger := _config.Tablenet.Logger()

	if configFile != "" {
		logger.Debugf("Using config file: %s", configFile)
	} else {
		logger.Debugf("No config file found in: %s", _config.Tablenet.DataDir)
	}

	logger.WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper. It returns the config file
// used, if any. The logger is only created once the configuration is final.
func bindFlagsLoadViper(cmd *cobra.Command) (string, error) {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return "", err
	}

	// TABLENET_PASSWORD, TABLENET_NAME...
	viper.SetEnvPrefix("tablenet")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return "", err
	}

	// look for config file in [datadir]/tablenet.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile) // name of config file (without extension)
	viper.AddConfigPath(_config.Tablenet.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return "", err
		}
	}

	// second unmarshal to read from config file
	return viper.ConfigFileUsed(), viper.Unmarshal(_config)
}
