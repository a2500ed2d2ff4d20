package server

import (
	"meilibridge/pkg/util"
)

type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port,omitempty" yaml:"port,omitempty" mapstructure:"port"`
}

func (g *Config) Validate() []error {
	var errs = make([]error, 0)
	if !g.Enabled {
		return errs
	}
	if err := util.IsValidPort(g.Port); err != nil {
		errs = append(errs, err)
	}
	return errs
}

func NewDefaultConfig() *Config {
	return &Config{
		Port: 3000,
	}
}
