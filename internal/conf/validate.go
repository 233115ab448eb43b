// conf/validate.go

package conf

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/tphakala/sensorrec/internal/logger"
)

// streamNamePattern keeps stream names safe to embed in chunk file names.
var streamNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateRecorderSettings(&settings.Recorder); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	ve.Errors = append(ve.Errors, validateStreams(settings.Streams)...)

	if err := validateSimulationSettings(&settings.Simulation); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateLoggingSettings(&settings.Logging); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Metrics.Enabled && settings.Metrics.Listen == "" {
		ve.Errors = append(ve.Errors, "metrics.listen must be set when metrics are enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateRecorderSettings(settings *RecorderSettings) error {
	if settings.OutputDir == "" {
		return fmt.Errorf("recorder.output_dir must not be empty")
	}
	if settings.ArchiveDir == "" {
		settings.ArchiveDir = settings.OutputDir
	}
	if settings.DrainTimeout <= 0 {
		return fmt.Errorf("recorder.drain_timeout must be positive, got %s", settings.DrainTimeout)
	}
	return validateCompressionLevel(settings.CompressionLevel)
}

func validateCompressionLevel(level int) error {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return fmt.Errorf("compression_level must be between %d and %d, got %d",
			flate.HuffmanOnly, flate.BestCompression, level)
	}
	return nil
}

// validateStreams checks every stream and returns one message per problem.
func validateStreams(streams []StreamSettings) []string {
	if len(streams) == 0 {
		return []string{"at least one stream must be configured"}
	}

	var problems []string
	seen := make(map[string]bool, len(streams))

	for i := range streams {
		st := &streams[i]
		prefix := fmt.Sprintf("streams[%d]", i)
		if st.Name != "" {
			prefix = fmt.Sprintf("streams[%s]", st.Name)
		}

		if !ValidStreamName(st.Name) {
			problems = append(problems, fmt.Sprintf("%s: name %q must match %s", prefix, st.Name, streamNamePattern))
		}
		if seen[st.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate stream name", prefix))
		}
		seen[st.Name] = true

		switch st.Kind {
		case StreamKindImage:
			if st.Planes <= 0 {
				problems = append(problems, fmt.Sprintf("%s: image streams need at least one plane", prefix))
			}
			if len(st.PlaneBytes) != 0 && len(st.PlaneBytes) != st.Planes {
				problems = append(problems, fmt.Sprintf("%s: plane_bytes has %d values for %d planes", prefix, len(st.PlaneBytes), st.Planes))
			}
			for _, n := range st.PlaneBytes {
				if n < 0 {
					problems = append(problems, fmt.Sprintf("%s: plane_bytes must not be negative", prefix))
					break
				}
			}
		case StreamKindInertial:
			if st.Planes > 1 {
				problems = append(problems, fmt.Sprintf("%s: inertial streams carry a single plane", prefix))
			}
		default:
			problems = append(problems, fmt.Sprintf("%s: kind must be %q or %q, got %q", prefix, StreamKindImage, StreamKindInertial, st.Kind))
		}

		if st.Capacity <= 0 {
			problems = append(problems, fmt.Sprintf("%s: capacity must be positive", prefix))
		}
		if st.Slots != 0 && st.Slots < 2 {
			problems = append(problems, fmt.Sprintf("%s: slots must be at least 2", prefix))
		}

		switch st.Backpressure {
		case "", BackpressureGrow, BackpressureDrop, BackpressureBlock:
		default:
			problems = append(problems, fmt.Sprintf("%s: backpressure must be grow, drop or block, got %q", prefix, st.Backpressure))
		}
		if st.MaxOverflow < 0 {
			problems = append(problems, fmt.Sprintf("%s: max_overflow must not be negative", prefix))
		}
		if st.BlockTimeout < 0 {
			problems = append(problems, fmt.Sprintf("%s: block_timeout must not be negative", prefix))
		}
	}

	return problems
}

func validateSimulationSettings(settings *SimulationSettings) error {
	if settings.IMURate <= 0 || settings.CameraFPS <= 0 {
		return fmt.Errorf("simulation rates must be positive")
	}
	if settings.Width <= 0 || settings.Height <= 0 || settings.Width%2 != 0 || settings.Height%2 != 0 {
		return fmt.Errorf("simulation width and height must be positive and even, got %dx%d", settings.Width, settings.Height)
	}
	if settings.MetadataDropRate < 0 || settings.MetadataDropRate > 1 {
		return fmt.Errorf("simulation.metadata_drop_rate must be between 0 and 1")
	}
	return nil
}

func validateLoggingSettings(settings *logger.LoggingConfig) error {
	levels := []string{settings.DefaultLevel}
	if settings.Console != nil {
		levels = append(levels, settings.Console.Level)
	}
	if settings.FileOutput != nil {
		levels = append(levels, settings.FileOutput.Level)
		if settings.FileOutput.Enabled && settings.FileOutput.Path == "" {
			return fmt.Errorf("logging.file_output.path must be set when file output is enabled")
		}
	}
	for _, level := range settings.ModuleLevels {
		levels = append(levels, level)
	}
	for _, level := range levels {
		if level != "" && !logger.ValidLevel(level) {
			return fmt.Errorf("invalid log level %q", level)
		}
	}
	return nil
}

// ValidStreamName reports whether name is usable as a stream name.
func ValidStreamName(name string) bool {
	return streamNamePattern.MatchString(name)
}
