// Package api provides the HTTP REST API and WebSocket server for the
// bluecore host stack.
//
// It exposes the device and group registries, active-device routing and
// preferred-profile negotiation to local settings UIs, plus a WebSocket
// feed of connection and routing events.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All state-mutating handlers run their work on the dispatch loop, so
// HTTP traffic is serialised with stack events and never races the
// registries.
//
// Thread Safety: All methods are safe for concurrent use.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bluecore-io/bluecore/internal/device"
	"github.com/bluecore-io/bluecore/internal/dispatch"
	"github.com/bluecore-io/bluecore/internal/infrastructure/config"
	"github.com/bluecore-io/bluecore/internal/infrastructure/logging"
	"github.com/bluecore-io/bluecore/internal/preference"
	"github.com/bluecore-io/bluecore/internal/profile"
	"github.com/bluecore-io/bluecore/internal/storage"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ActiveController is the slice of the arbiter the API consumes.
type ActiveController interface {
	ActiveGroup() int
	ActiveDevice(direction device.Direction) (string, profile.ID)
	SetActiveDevice(address string, requested profile.Mask)
}

// AdapterController is the slice of the adapter coordinator the API
// consumes.
type AdapterController interface {
	State() string
	TurnOn() error
	TurnOff() error
	Profiles() []profile.ID
	Profile(id profile.ID) *profile.Manager
}

// PreferenceService is the slice of the preference negotiator the API
// consumes.
type PreferenceService interface {
	Request(address string, prefs storage.Preferences, cb preference.Callback) error
	NotifyActiveDeviceChangeApplied(address string) error
	Pending(address string) bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Devices     *device.Registry
	Groups      *device.GroupRegistry
	Adapter     AdapterController
	Active      ActiveController
	Preferences PreferenceService
	Store       storage.Repository
	Loop        *dispatch.Loop
	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	devices     *device.Registry
	groups      *device.GroupRegistry
	adapter     AdapterController
	active      ActiveController
	prefs       PreferenceService
	store       storage.Repository
	loop        *dispatch.Loop
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registries, loop)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Groups == nil {
		return nil, fmt.Errorf("group registry is required")
	}
	if deps.Loop == nil {
		return nil, fmt.Errorf("dispatch loop is required")
	}

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		devices: deps.Devices,
		groups:  deps.Groups,
		adapter: deps.Adapter,
		active:  deps.Active,
		prefs:   deps.Preferences,
		store:   deps.Store,
		loop:    deps.Loop,
		version: deps.Version,
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Hub returns the WebSocket hub for event broadcasting. Nil until
// Start() unless an external hub was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
