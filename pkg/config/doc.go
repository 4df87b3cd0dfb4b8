// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Structs declare their environment bindings through `env` and `envDefault`
// field tags. Load reads the process environment (seeded from .env when
// present), LoadFrom reads explicit env files, and MustLoad panics when a
// required value is missing.
package config
