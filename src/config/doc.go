// Package config defines the configuration of a tablenet node.
//
// Config holds the options of the node, whether it is started from Go code or
// from the command line, where viper fills it from flags and from an optional
// configuration file in Config.DataDir:
//
//  tablenet.toml // (optional) or tablenet.yaml, tablenet.json
//  badger_db/    // the mutation journal when Store is set
//
// NetworkTableConfiguration is the immutable set of connection parameters
// handed to Host and Join. It keeps its own copy of the password.
package config
