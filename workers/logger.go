package workers

import "price_crew/models"

// LogFunc is a function that logs to the scrape_logs table
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}

type logStore interface {
	Log(batchID *string, level models.LogLevel, message, source string) error
}

// StoreLogger writes worker log lines to the operational store.
func StoreLogger(store logStore) LogFunc {
	return func(level models.LogLevel, source, message string) {
		store.Log(nil, level, message, source)
	}
}
