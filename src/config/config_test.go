package config

import (
	"bytes"
	"path/filepath"
	"testing"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/table"
)

func TestPasswordIsCopied(t *testing.T) {
	password := []byte("secret")

	conf, err := NewNetworkTableConfiguration("localhost", 1234, password, "alice", table.New(table.NewStandardRegistry()))
	if err != nil {
		t.Fatal(err)
	}

	// wiping the construction buffer does not affect the configuration
	for i := range password {
		password[i] = 0
	}

	p1 := conf.Password()
	if !bytes.Equal(p1, []byte("secret")) {
		t.Fatalf("password should be 'secret', not '%s'", p1)
	}

	p1[0] = 'X'
	p2 := conf.Password()
	if !bytes.Equal(p2, []byte("secret")) {
		t.Fatalf("mutating a copy changed the configuration: '%s'", p2)
	}
	if &p1[0] == &p2[0] {
		t.Fatalf("Password returned the same buffer twice")
	}

	conf.Wipe()
	if bytes.Equal(conf.Password(), []byte("secret")) {
		t.Fatalf("password should be wiped")
	}
}

func TestNetworkTableConfigurationValidation(t *testing.T) {
	tb := table.New(table.NewStandardRegistry())

	cases := []struct {
		name     string
		host     string
		port     int
		password []byte
		player   string
		table    table.Model
	}{
		{"empty host", "", 1234, []byte("p"), "alice", tb},
		{"blank host", "  ", 1234, []byte("p"), "alice", tb},
		{"negative port", "localhost", -1, []byte("p"), "alice", tb},
		{"port too big", "localhost", 65536, []byte("p"), "alice", tb},
		{"no password", "localhost", 1234, nil, "alice", tb},
		{"no player", "localhost", 1234, []byte("p"), "", tb},
		{"no table", "localhost", 1234, []byte("p"), "alice", nil},
	}

	for _, c := range cases {
		_, err := NewNetworkTableConfiguration(c.host, c.port, c.password, c.player, c.table)
		if !cm.IsNetworkTable(err, cm.ConfigurationError) {
			t.Fatalf("%s: expected a configuration error, got %v", c.name, err)
		}
	}

	conf, err := NewNetworkTableConfiguration("::1", 0, []byte("p"), "alice", tb)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Address() != "[::1]:0" {
		t.Fatalf("address should be [::1]:0, not %s", conf.Address())
	}
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/tablenet")
	if conf.DatabaseDir != filepath.Join("/tmp/tablenet", DefaultBadgerFile) {
		t.Fatalf("unexpected database dir %s", conf.DatabaseDir)
	}

	conf.DatabaseDir = "/elsewhere"
	conf.SetDataDir("/tmp/other")
	if conf.DatabaseDir != "/elsewhere" {
		t.Fatalf("explicit database dir should be kept, got %s", conf.DatabaseDir)
	}
}

func TestConfigPasswordIsSealed(t *testing.T) {
	tb := table.New(table.NewStandardRegistry())

	conf := NewTestConfig(t)
	conf.PlayerName = "alice"
	conf.Password = "secret"

	conf.SealPassword()
	if conf.Password != "" {
		t.Fatalf("sealing should clear the Password field")
	}

	ntc, err := conf.NetworkTableConfiguration(tb)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ntc.Password(), []byte("secret")) {
		t.Fatalf("password should be 'secret', not '%s'", ntc.Password())
	}

	// the sealed password outlives a first use, and is copied from the caller
	p := []byte("other")
	conf.SetPassword(p)
	p[0] = 'X'
	ntc, err = conf.NetworkTableConfiguration(tb)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ntc.Password(), []byte("other")) {
		t.Fatalf("password should be 'other', not '%s'", ntc.Password())
	}

	conf.WipePassword()
	if _, err := conf.NetworkTableConfiguration(tb); !cm.IsNetworkTable(err, cm.ConfigurationError) {
		t.Fatalf("a wiped password should be a configuration error, got %v", err)
	}

	// the configuration built before the wipe keeps its own copy
	if !bytes.Equal(ntc.Password(), []byte("other")) {
		t.Fatalf("wiping the config affected the table configuration")
	}
}
