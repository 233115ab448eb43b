// Package record implements the record command.
package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/sensorrec/internal/buildinfo"
	"github.com/tphakala/sensorrec/internal/capture"
	"github.com/tphakala/sensorrec/internal/conf"
	"github.com/tphakala/sensorrec/internal/logger"
	"github.com/tphakala/sensorrec/internal/observability"
	"github.com/tphakala/sensorrec/internal/recorder"
	"github.com/tphakala/sensorrec/internal/sensors"
)

// statusInterval is how often progress is logged while recording.
const statusInterval = 5 * time.Second

type options struct {
	duration  time.Duration
	sessionID string
}

// Command creates the record command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a session from simulated sensors",
		Long: "Capture every configured stream from simulated devices into chunk files, " +
			"then package the session into a zip archive. Runs for --duration or until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path, err := run(ctx, settings, build, opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop recording after this long (0 records until interrupted)")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Session id (default: random UUID)")

	return cmd
}

// run records one session and returns the archive path.
func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, opts options) (string, error) {
	log := logger.Global().Module("main")
	log.Info("starting sensorrec", logger.String("version", build.GetVersion()))

	cfg, err := recorder.ConfigFromSettings(settings)
	if err != nil {
		return "", err
	}

	// one clock for every device so timestamps line up across streams
	recOpts, err := simulatedSources(settings, &cfg, sensors.MonotonicClock())
	if err != nil {
		return "", err
	}

	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return "", err
		}
		endpoint, err := observability.NewEndpoint(settings, m)
		if err != nil {
			return "", err
		}
		metricsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer func() {
			cancel()
			endpoint.Wait()
		}()
		if err := endpoint.Start(metricsCtx); err != nil {
			return "", fmt.Errorf("failed to start metrics endpoint: %w", err)
		}
		recOpts = append(recOpts, recorder.WithMetrics(m.Capture))
	}

	rec, err := recorder.New(cfg, recOpts...)
	if err != nil {
		return "", err
	}

	id, err := rec.Start(ctx, opts.sessionID)
	if err != nil {
		return "", err
	}

	var deadline <-chan time.Time
	if opts.duration > 0 {
		timer := time.NewTimer(opts.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

wait:
	for {
		select {
		case <-ctx.Done():
			log.Info("interrupted, stopping session", logger.String("session_id", id))
			break wait
		case <-deadline:
			break wait
		case <-ticker.C:
			logProgress(log, rec.Status())
		case <-hup:
			reopenLog(logger.Global(), log)
		}
	}

	// drain gets its own bound from the recorder's drain timeout
	return rec.Stop(context.WithoutCancel(ctx))
}

// reopenLog picks up a log file moved away by external rotation.
func reopenLog(cl *logger.CentralLogger, log logger.Logger) {
	if err := cl.ReopenLogFile(); err != nil {
		log.Error("failed to reopen log file", logger.Error(err))
		return
	}
	log.Info("log file reopened")
}

// simulatedSources attaches one simulated device per configured stream, all
// reading clock, and fixes image stream shapes to what the simulated camera
// produces.
func simulatedSources(settings *conf.Settings, cfg *recorder.Config, clock sensors.Clock) ([]recorder.Option, error) {
	sim := settings.Simulation
	var opts []recorder.Option

	for i := range cfg.Streams {
		sc := &cfg.Streams[i]
		seed := sim.Seed + int64(i)
		switch sc.Kind {
		case capture.KindInertial:
			axis := sensors.Accelerometer
			if sc.Name == "gyro" {
				axis = sensors.Gyroscope
			}
			opts = append(opts, recorder.WithSource(
				sensors.NewSimulatedIMU(sc.Name, axis, sim.IMURate, clock, seed)))
		case capture.KindImage:
			cam := sensors.NewSimulatedCamera(sc.Name, sim.CameraFPS, sim.Width, sim.Height, clock)
			sc.Shape = capture.PayloadShape{Planes: 3, PlaneBytes: cam.PlaneBytes()}
			opts = append(opts,
				recorder.WithSource(cam),
				recorder.WithMetadataSource(cam.Metadata(sim.MetadataDropRate, sim.MetadataJitter, seed)))
		default:
			return nil, fmt.Errorf("stream %q: no simulated device for kind %s", sc.Name, sc.Kind)
		}
	}
	return opts, nil
}

func logProgress(log logger.Logger, st recorder.Status) {
	for _, s := range st.Streams {
		log.Info("recording progress",
			logger.String("stream", s.Name),
			logger.Uint64("appended", s.Appended),
			logger.Uint64("chunks", s.HandedOff),
			logger.Uint64("overruns", s.Overruns),
			logger.Uint64("dropped_entries", s.DroppedEntries))
	}
	log.Debug("writer progress",
		logger.Uint64("written", st.Writer.Written),
		logger.Int("pending", st.Writer.Pending))
}
