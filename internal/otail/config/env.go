package config

import (
	"os"

	"github.com/snonux/otail/internal/otail/dlog"
)

// LogLevelEnvVar is the environment variable controlling diagnostic
// logging verbosity. Unset or unrecognised values disable logging.
const LogLevelEnvVar = "OTAIL_LOG_LEVEL"

// LogLevelFromEnv resolves the configured log level from the environment.
func LogLevelFromEnv() dlog.Level {
	return dlog.ParseLevel(os.Getenv(LogLevelEnvVar))
}
