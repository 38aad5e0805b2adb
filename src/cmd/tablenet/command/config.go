package command

import (
	"github.com/mosaicnetworks/tablenet/src/config"
)

//CLIConfig contains configuration for the host and join commands
type CLIConfig struct {
	Tablenet config.Config `mapstructure:",squash"`

	// Deck is the number of cards a host puts on a fresh table.
	Deck int `mapstructure:"deck"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Tablenet: *config.NewDefaultConfig(),
		Deck:     52,
	}
}
