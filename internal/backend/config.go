package backend

import (
	"errors"
	"fmt"

	"conti/internal/config"
)

// FromAppConfig picks the storage and event settings out of the process
// configuration.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	bt := BackendType(appConfig.DataBackend)
	if !bt.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (valid: %v)", appConfig.DataBackend, GetBackendTypes())
	}
	return Config{
		Type:         bt,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate checks that the selected backend has what it needs to open.
func (c Config) Validate() error {
	var missing string
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			missing = "SQLite database path"
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			missing = "database URL"
		}
	case MemoryBackend:
	default:
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if missing != "" {
		return fmt.Errorf("%s is required for %s backend", missing, c.Type)
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return errors.New("AMQP exchange and queue are required when AMQP URL is set")
	}
	return nil
}

// GetBackendTypes lists the accepted DATA_BACKEND values.
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, PostgresBackend, MemoryBackend}
}
