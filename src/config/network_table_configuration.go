package config

import (
	"net"
	"strconv"
	"strings"

	cm "github.com/mosaicnetworks/tablenet/src/common"
	"github.com/mosaicnetworks/tablenet/src/crypto"
	"github.com/mosaicnetworks/tablenet/src/table"
)

// NetworkTableConfiguration is the immutable set of parameters used to host or
// join a table.
type NetworkTableConfiguration struct {
	hostName        string
	port            int
	password        *crypto.Secret
	localPlayerName string
	localTable      table.Model
}

// NewNetworkTableConfiguration validates its arguments and copies password.
// The caller keeps ownership of password and may wipe it as soon as this
// returns. Every error has the ConfigurationError kind.
func NewNetworkTableConfiguration(
	hostName string,
	port int,
	password []byte,
	localPlayerName string,
	localTable table.Model,
) (*NetworkTableConfiguration, error) {
	const op = "NewNetworkTableConfiguration"

	if strings.TrimSpace(hostName) == "" {
		return nil, cm.NetworkTableErrorf(cm.ConfigurationError, op, "missing host name")
	}
	if port < 0 || port > 65535 {
		return nil, cm.NetworkTableErrorf(cm.ConfigurationError, op, "port %d out of range", port)
	}
	if len(password) == 0 {
		return nil, cm.NetworkTableErrorf(cm.ConfigurationError, op, "missing password")
	}
	if strings.TrimSpace(localPlayerName) == "" {
		return nil, cm.NetworkTableErrorf(cm.ConfigurationError, op, "missing player name")
	}
	if localTable == nil {
		return nil, cm.NetworkTableErrorf(cm.ConfigurationError, op, "missing local table")
	}

	return &NetworkTableConfiguration{
		hostName:        hostName,
		port:            port,
		password:        crypto.NewSecret(password),
		localPlayerName: localPlayerName,
		localTable:      localTable,
	}, nil
}

// HostName ...
func (c *NetworkTableConfiguration) HostName() string {
	return c.hostName
}

// Port ...
func (c *NetworkTableConfiguration) Port() int {
	return c.port
}

// Address returns host:port.
func (c *NetworkTableConfiguration) Address() string {
	return net.JoinHostPort(c.hostName, strconv.Itoa(c.port))
}

// Password returns a fresh copy of the password on every call. Callers
// should crypto.Wipe it when done.
func (c *NetworkTableConfiguration) Password() []byte {
	return c.password.Bytes()
}

// LocalPlayerName ...
func (c *NetworkTableConfiguration) LocalPlayerName() string {
	return c.localPlayerName
}

// LocalTable returns the table replicated by the node.
func (c *NetworkTableConfiguration) LocalTable() table.Model {
	return c.localTable
}

// Wipe zeroes the configuration's copy of the password. The configuration can
// not authenticate anymore afterwards.
func (c *NetworkTableConfiguration) Wipe() {
	c.password.Wipe()
}
