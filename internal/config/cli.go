// Package config defines the command line of yuki.
package config

import (
	"github.com/crolbar/yuki/internal/cmd"
	"github.com/crolbar/yuki/internal/log"
)

type CLI struct {
	ConfigFile string     `name:"config" help:"Configuration file (json, yaml or toml)" env:"YUKI_CONFIG"`
	Log        log.Config `embed:"" prefix:"log."`

	Run    cmd.Run           `cmd:"" default:"withargs" help:"Run one keyboard half"`
	Ports  cmd.Ports         `cmd:"" help:"List serial ports usable as the link"`
	Config cmd.ConfigCommand `cmd:"" help:"Configuration helpers"`
}
