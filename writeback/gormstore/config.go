// Package gormstore implements writeback.Store over GORM, supporting both
// Postgres and SQLite as the persistent backing database.
package gormstore

import "github.com/torrtrack/torrtrack/pkg/log"

// Default config constants.
const (
	defaultDriver = "sqlite"
	defaultDsn    = "data/torrtrack.sqlite"
)

// Config holds the configuration of a Store's database connection.
type Config struct {
	// Driver selects the SQL dialect: "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// Dsn is the driver-specific data source name.
	Dsn string `yaml:"dsn"`
}

// LogFields renders the current config as a set of Fields for logging.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"driver": cfg.Driver,
		"dsn":    cfg.Dsn,
	}
}

// Validate sanity checks values set in a config and returns a new config
// with default values substituted for anything invalid.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.Driver == "" {
		validcfg.Driver = defaultDriver
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "gormstore.Driver",
			"provided": cfg.Driver,
			"default":  validcfg.Driver,
		})
	}

	if cfg.Dsn == "" {
		validcfg.Dsn = defaultDsn
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "gormstore.Dsn",
			"provided": cfg.Dsn,
			"default":  validcfg.Dsn,
		})
	}

	return validcfg
}
