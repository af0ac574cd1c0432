package migrate

import (
	"fmt"
	"log/slog"
	"os"
)

// schemaLogger routes goose progress for the SocialDog schema into the API's
// structured log, tagged so start-up migrations can be filtered out.
type schemaLogger struct {
	logger *slog.Logger
}

func (l schemaLogger) Printf(format string, v ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Info(fmt.Sprintf(format, v...), "component", "schema_migration")
}

// Fatalf aborts API start-up.
func (l schemaLogger) Fatalf(format string, v ...interface{}) {
	if l.logger != nil {
		l.logger.Error(fmt.Sprintf(format, v...), "component", "schema_migration")
	}
	os.Exit(1)
}
