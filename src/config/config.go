package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/crypto"
	"github.com/mosaicnetworks/tablenet/src/table"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// mutation journal
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the base name of the configuration file read from
	// the data directory (tablenet.toml, tablenet.yaml, tablenet.json...)
	DefaultConfigFile = "tablenet"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultLogFile          = ""
	DefaultHostName         = "127.0.0.1"
	DefaultPort             = 7455
	DefaultPlayerName       = ""
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultDialTimeout      = 5 * time.Second
	DefaultTickInterval     = 200 * time.Millisecond
	DefaultInboxSize        = 256
	DefaultOutboxSize       = 256
	DefaultMaxFrameSize     = 16 * 1024 * 1024
	DefaultJournalSize      = 1000
	DefaultStore            = false
	DefaultNoService        = false
	DefaultServiceAddr      = "127.0.0.1:8000"
)

// Config contains all the configuration properties of a tablenet node.
type Config struct {
	// DataDir is the top-level directory containing the configuration file and
	// the database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, also writes JSON log lines to this file.
	LogFile string `mapstructure:"log-file"`

	// HostName is the address the host binds to, or the address of the host
	// a client joins.
	HostName string `mapstructure:"host"`

	// Port is the TCP port of the host. Port 0 picks an ephemeral port when
	// hosting.
	Port int `mapstructure:"port"`

	// PlayerName is the name of the local player in the roster.
	PlayerName string `mapstructure:"name"`

	// Password receives the shared table password from flags, environment or
	// config file. SealPassword moves it into a wipeable buffer and clears
	// the field.
	Password string `mapstructure:"password"`

	// HandshakeTimeout bounds the time a connection may spend before being
	// authenticated.
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`

	// DialTimeout is the timeout of the client's connection attempt.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// TickInterval is the period of the dispatcher's tick events.
	TickInterval time.Duration `mapstructure:"tick"`

	// InboxSize is the number of events buffered per handler before it is
	// closed as too slow.
	InboxSize int `mapstructure:"inbox-size"`

	// OutboxSize is the number of frames buffered per connection before it is
	// closed as too slow.
	OutboxSize int `mapstructure:"outbox-size"`

	// MaxFrameSize is the largest accepted wire frame, in bytes.
	MaxFrameSize int `mapstructure:"max-frame-size"`

	// JournalSize is the number of mutations the host keeps in memory to
	// answer resync requests.
	JournalSize int `mapstructure:"journal-size"`

	// Store keeps the whole mutation journal of the session in a badger
	// database under DatabaseDir.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	password *crypto.Secret
	logger   *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		LogFile:          DefaultLogFile,
		HostName:         DefaultHostName,
		Port:             DefaultPort,
		PlayerName:       DefaultPlayerName,
		HandshakeTimeout: DefaultHandshakeTimeout,
		DialTimeout:      DefaultDialTimeout,
		TickInterval:     DefaultTickInterval,
		InboxSize:        DefaultInboxSize,
		OutboxSize:       DefaultOutboxSize,
		MaxFrameSize:     DefaultMaxFrameSize,
		JournalSize:      DefaultJournalSize,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		NoService:        DefaultNoService,
		ServiceAddr:      DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values, short timeouts,
// no HTTP service, and a logger writing through t.Log.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.HostName = "127.0.0.1"
	config.Port = 0
	config.HandshakeTimeout = 2 * time.Second
	config.DialTimeout = time.Second
	config.TickInterval = 20 * time.Millisecond
	config.NoService = true
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// SetPassword replaces the table password with a copy of p. The caller
// remains responsible for wiping p.
func (c *Config) SetPassword(p []byte) {
	c.WipePassword()
	c.password = crypto.NewSecret(p)
	c.Password = ""
}

// SealPassword moves the Password field into a Secret and clears it. It does
// nothing if the field is empty.
func (c *Config) SealPassword() {
	if c.Password != "" {
		c.SetPassword([]byte(c.Password))
	}
}

// WipePassword zeroes and forgets the sealed password.
func (c *Config) WipePassword() {
	if c.password != nil {
		c.password.Wipe()
		c.password = nil
	}
}

// NetworkTableConfiguration builds the connection parameters of the node from
// the configuration. The password is sealed first.
func (c *Config) NetworkTableConfiguration(localTable table.Model) (*NetworkTableConfiguration, error) {
	c.SealPassword()

	var password []byte
	if c.password != nil && c.password.Len() > 0 {
		password = c.password.Bytes()
		defer crypto.Wipe(password)
	}

	return NewNetworkTableConfiguration(c.HostName, c.Port, password, c.PlayerName, localTable)
}

// Logger returns a formatted logrus Entry, with prefix set to "tablenet".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, l := range logrus.AllLevels {
				pathMap[l] = c.LogFile
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", "tablenet")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level tablenet
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Tablenet")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Tablenet")
		} else {
			return filepath.Join(home, ".tablenet")
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
