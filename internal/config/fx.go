package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(
		LoadValidated,
		NewMappingHolder,
	),
)

// LoadValidated loads the configuration and refuses to start without the
// settings the service cannot run without.
func LoadValidated() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
