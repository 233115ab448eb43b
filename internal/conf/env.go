// env.go - environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SENSORREC_RECORDER_OUTPUT_DIR.
const EnvPrefix = "SENSORREC"

type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "SENSORREC_DEBUG", validateEnvBool},

		{"recorder.output_dir", "SENSORREC_RECORDER_OUTPUT_DIR", validateEnvPath},
		{"recorder.archive_dir", "SENSORREC_RECORDER_ARCHIVE_DIR", validateEnvPath},
		{"recorder.drain_timeout", "SENSORREC_RECORDER_DRAIN_TIMEOUT", validateEnvDuration},
		{"recorder.min_free_bytes", "SENSORREC_RECORDER_MIN_FREE_BYTES", validateEnvUint},
		{"recorder.compression_level", "SENSORREC_RECORDER_COMPRESSION_LEVEL", validateEnvCompressionLevel},

		{"metrics.enabled", "SENSORREC_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "SENSORREC_METRICS_LISTEN", nil},

		{"telemetry.sentry_dsn", "SENSORREC_TELEMETRY_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every known variable and collects validation warnings.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := os.Getenv(binding.EnvVar); value != "" {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, value, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration like 10s")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvUint(value string) error {
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		return fmt.Errorf("must be a non-negative integer")
	}
	return nil
}

func validateEnvCompressionLevel(value string) error {
	level, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	return validateCompressionLevel(level)
}

func validateEnvPath(value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for viper.
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}
