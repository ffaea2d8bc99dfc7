// Package config loads env-tagged configuration structs from the process
// environment (and an optional .env file in development). Each struct type is
// parsed once and cached, so components asking for the same config type
// always agree on its values.
//
//	type Config struct {
//		DatabaseURL string `env:"DATABASE_URL,required"`
//		Debug       bool   `env:"DEBUG" envDefault:"false"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
