// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via
// go-simpler/env struct tags, and validates field values.
package config
