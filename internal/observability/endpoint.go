package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tphakala/sensorrec/internal/conf"
	"github.com/tphakala/sensorrec/internal/logger"
	metricspkg "github.com/tphakala/sensorrec/internal/observability/metrics"
)

// Endpoint serves Prometheus metrics over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	debug         bool
	wg            sync.WaitGroup
	log           logger.Logger

	mu       sync.Mutex
	listener net.Listener
}

// NewEndpoint creates the metrics endpoint. It returns an error when metrics
// are disabled in settings.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Metrics.Enabled {
		return nil, errors.New("metrics not enabled in settings")
	}

	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		metrics:       metrics,
		debug:         settings.Debug,
		log:           getLogger(),
	}, nil
}

// Start binds the listen address and serves until ctx is cancelled.
// Bind errors are returned synchronously.
func (e *Endpoint) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)
	if e.debug {
		RegisterDebugHandlers(mux)
	}

	listener, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.listener = listener
	e.mu.Unlock()

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	e.wg.Go(func() {
		e.log.Info("metrics endpoint starting", logger.String("address", listener.Addr().String()))
		if err := e.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics HTTP server error", logger.Error(err))
		}
	})

	e.wg.Go(func() {
		<-ctx.Done()
		e.gracefulShutdown()
	})

	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return e.listenAddress
	}
	return e.listener.Addr().String()
}

// Wait blocks until the server goroutines exit.
func (e *Endpoint) Wait() {
	e.wg.Wait()
}

func (e *Endpoint) gracefulShutdown() {
	e.log.Info("stopping metrics endpoint")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		e.log.Error("metrics server shutdown error", logger.Error(err))
	}
}
