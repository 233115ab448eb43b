// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultIMUChunkSize matches one second of inertial data at 1 kHz.
	DefaultIMUChunkSize = 1000
	// DefaultImageChunkSize holds one second of frames at 30 fps.
	DefaultImageChunkSize = 30
	DefaultSlots          = 3
	DefaultMaxOverflow    = 4
	DefaultDrainTimeout   = 10 * time.Second
	DefaultBlockTimeout   = 250 * time.Millisecond

	defaultWidth  = 160
	defaultHeight = 120
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("recorder.output_dir", "recordings")
	v.SetDefault("recorder.archive_dir", "")
	v.SetDefault("recorder.drain_timeout", DefaultDrainTimeout)
	v.SetDefault("recorder.min_free_bytes", 64*1024*1024)
	v.SetDefault("recorder.compression_level", -1)

	lumaBytes := defaultWidth * defaultHeight
	chromaBytes := lumaBytes / 4
	v.SetDefault("streams", []map[string]any{
		{
			"name":          "camera",
			"kind":          StreamKindImage,
			"capacity":      DefaultImageChunkSize,
			"planes":        3,
			"plane_bytes":   []int{lumaBytes, chromaBytes, chromaBytes},
			"slots":         DefaultSlots,
			"backpressure":  BackpressureGrow,
			"max_overflow":  DefaultMaxOverflow,
			"block_timeout": DefaultBlockTimeout.String(),
		},
		{
			"name":          "acc",
			"kind":          StreamKindInertial,
			"capacity":      DefaultIMUChunkSize,
			"slots":         DefaultSlots,
			"backpressure":  BackpressureGrow,
			"max_overflow":  DefaultMaxOverflow,
			"block_timeout": DefaultBlockTimeout.String(),
		},
		{
			"name":          "gyro",
			"kind":          StreamKindInertial,
			"capacity":      DefaultIMUChunkSize,
			"slots":         DefaultSlots,
			"backpressure":  BackpressureGrow,
			"max_overflow":  DefaultMaxOverflow,
			"block_timeout": DefaultBlockTimeout.String(),
		},
	})

	v.SetDefault("simulation.imu_rate", 1000.0)
	v.SetDefault("simulation.camera_fps", 30.0)
	v.SetDefault("simulation.width", defaultWidth)
	v.SetDefault("simulation.height", defaultHeight)
	v.SetDefault("simulation.metadata_drop_rate", 0.02)
	v.SetDefault("simulation.metadata_jitter", 5*time.Millisecond)
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/sensorrec.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9464")

	v.SetDefault("telemetry.sentry_dsn", "")
}
