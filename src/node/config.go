package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/tablenet/src/common"
	"github.com/sirupsen/logrus"
)

// Config holds the transport and replication parameters of a Node.
type Config struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`
	DialTimeout      time.Duration `mapstructure:"dial-timeout"`
	TickInterval     time.Duration `mapstructure:"tick"`
	InboxSize        int           `mapstructure:"inbox-size"`
	OutboxSize       int           `mapstructure:"outbox-size"`
	MaxFrameSize     int           `mapstructure:"max-frame-size"`
	JournalSize      int           `mapstructure:"journal-size"`
	Logger           *logrus.Entry
}

// NewConfig ...
func NewConfig(handshakeTimeout time.Duration,
	dialTimeout time.Duration,
	tickInterval time.Duration,
	inboxSize int,
	outboxSize int,
	maxFrameSize int,
	journalSize int,
	logger *logrus.Entry) *Config {

	return &Config{
		HandshakeTimeout: handshakeTimeout,
		DialTimeout:      dialTimeout,
		TickInterval:     tickInterval,
		InboxSize:        inboxSize,
		OutboxSize:       outboxSize,
		MaxFrameSize:     maxFrameSize,
		JournalSize:      journalSize,
		Logger:           logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HandshakeTimeout: 10 * time.Second,
		DialTimeout:      5 * time.Second,
		TickInterval:     200 * time.Millisecond,
		InboxSize:        256,
		OutboxSize:       256,
		MaxFrameSize:     16 * 1024 * 1024,
		JournalSize:      1000,
		Logger:           logrus.NewEntry(logger),
	}
}

// TestConfig returns a Config with short timeouts, logging through t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HandshakeTimeout = 2 * time.Second
	config.DialTimeout = time.Second
	config.TickInterval = 20 * time.Millisecond
	config.Logger = common.NewTestEntry(t)
	return config
}
