// config.go: settings structs and loading for sensorrec
package conf

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/sensorrec/internal/errors"
	"github.com/tphakala/sensorrec/internal/logger"
)

// Stream kinds accepted in configuration
const (
	StreamKindImage    = "image"
	StreamKindInertial = "inertial"
)

// Backpressure policies accepted in configuration
const (
	BackpressureGrow  = "grow"
	BackpressureDrop  = "drop"
	BackpressureBlock = "block"
)

// Settings is the root configuration.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Recorder   RecorderSettings     `yaml:"recorder" mapstructure:"recorder"`
	Streams    []StreamSettings     `yaml:"streams" mapstructure:"streams"`
	Simulation SimulationSettings   `yaml:"simulation" mapstructure:"simulation"`
	Logging    logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics    MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Telemetry  TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
}

// RecorderSettings controls session output and shutdown.
type RecorderSettings struct {
	OutputDir        string        `yaml:"output_dir" mapstructure:"output_dir"`               // parent of per-session chunk directories
	ArchiveDir       string        `yaml:"archive_dir" mapstructure:"archive_dir"`             // where recording_<id>.zip is written, empty = output_dir
	DrainTimeout     time.Duration `yaml:"drain_timeout" mapstructure:"drain_timeout"`         // max wait for the writer queue on stop
	MinFreeBytes     uint64        `yaml:"min_free_bytes" mapstructure:"min_free_bytes"`       // refuse to start below this, 0 disables
	CompressionLevel int           `yaml:"compression_level" mapstructure:"compression_level"` // deflate level, -1 default, 0 store
}

// StreamSettings configures one capture stream.
type StreamSettings struct {
	Name         string        `yaml:"name" mapstructure:"name"`
	Kind         string        `yaml:"kind" mapstructure:"kind"`                         // image or inertial
	Capacity     int           `yaml:"capacity" mapstructure:"capacity"`                 // entries per chunk
	Planes       int           `yaml:"planes" mapstructure:"planes"`                     // image only
	PlaneBytes   []int         `yaml:"plane_bytes,omitempty" mapstructure:"plane_bytes"` // per plane payload size, 0 = fixed by first sample
	Slots        int           `yaml:"slots" mapstructure:"slots"`                       // arena size
	Backpressure string        `yaml:"backpressure" mapstructure:"backpressure"`         // grow, drop or block
	MaxOverflow  int           `yaml:"max_overflow" mapstructure:"max_overflow"`         // extra slots allowed under grow
	BlockTimeout time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`       // wait for a slot under block
}

// SimulationSettings drives the simulated devices used by the record command.
type SimulationSettings struct {
	IMURate          float64       `yaml:"imu_rate" mapstructure:"imu_rate"`                     // samples per second per inertial stream
	CameraFPS        float64       `yaml:"camera_fps" mapstructure:"camera_fps"`                 // frames per second
	Width            int           `yaml:"width" mapstructure:"width"`                           // luma width in pixels
	Height           int           `yaml:"height" mapstructure:"height"`                         // luma height in pixels
	MetadataDropRate float64       `yaml:"metadata_drop_rate" mapstructure:"metadata_drop_rate"` // probability a frame has no settings
	MetadataJitter   time.Duration `yaml:"metadata_jitter" mapstructure:"metadata_jitter"`       // max delay of settings delivery
	Seed             int64         `yaml:"seed" mapstructure:"seed"`
}

// MetricsSettings controls the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// TelemetrySettings controls optional Sentry error reporting.
type TelemetrySettings struct {
	SentryDSN string `yaml:"sentry_dsn" mapstructure:"sentry_dsn"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file, environment variables and bound flags
// into a validated Settings. An empty configFile searches the default paths;
// a missing file there is not an error.
func Load(configFile string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// bindFlags maps command line flags onto config keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flagKeys := map[string]string{
		"debug":  "debug",
		"output": "recorder.output_dir",
	}
	for flagName, key := range flagKeys {
		flag := flags.Lookup(flagName)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("flag", flagName).
				Build()
		}
	}
	return nil
}

func readConfigFile(v *viper.Viper, configFile string) error {
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				FileContext(configFile, 0).
				Context("operation", "read_config").
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	for _, path := range GetDefaultConfigPaths() {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}
	return nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// StreamByName returns the named stream settings.
func (s *Settings) StreamByName(name string) (StreamSettings, bool) {
	for _, st := range s.Streams {
		if st.Name == name {
			return st, true
		}
	}
	return StreamSettings{}, false
}

// MarshalYAMLDocument renders the settings as a YAML document.
func (s *Settings) MarshalYAMLDocument() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySerialization).
			Context("operation", "marshal_config").
			Build()
	}
	return data, nil
}

// SaveYAMLConfig writes settings to configPath atomically.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := settings.MarshalYAMLDocument()
	if err != nil {
		return err
	}

	tempFile := configPath + ".tmp"
	const filePermissions = 0o644
	if err := os.WriteFile(tempFile, data, filePermissions); err != nil {
		return errors.FileError(err, tempFile, int64(len(data)))
	}
	if err := os.Rename(tempFile, configPath); err != nil {
		_ = os.Remove(tempFile)
		return errors.FileError(err, configPath, int64(len(data)))
	}
	return nil
}
