package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-observatory/internal/audit"
	"github.com/nerrad567/gray-logic-observatory/internal/auth"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-observatory/internal/process"
	"github.com/nerrad567/gray-logic-observatory/internal/safety"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// defaultTokenTTL is the login token lifetime when none is configured.
const defaultTokenTTL = 12 * time.Hour

// Machine is the control loop as seen by the API. *machine.Machine satisfies it.
type Machine interface {
	State() string
	Status() map[string]any
	IsRunning() bool
	Interrupt()
	Stop()
}

// SafetyChecker produces a live safety verdict. *safety.Monitor satisfies it.
type SafetyChecker interface {
	Check(ctx context.Context, horizon, currentState string) safety.Verdict
}

// StatusSource holds the periodic status report. *status.Reporter satisfies it.
type StatusSource interface {
	Last() map[string]any
	Build(ctx context.Context) map[string]any
}

// ObservationSource lists and ranks observations. *scheduler.Scheduler satisfies it.
type ObservationSource interface {
	Observations() []*scheduler.Observation
	CurrentObservation() *scheduler.Observation
	Rank(t time.Time) []scheduler.Candidate
}

// HistorySource lists the sequences started so far and past status
// documents. *telemetry.SQLiteStore satisfies it.
type HistorySource interface {
	ObservedFields(ctx context.Context, limit int) ([]telemetry.ObservedField, error)
	History(ctx context.Context, collection string, limit int) ([]telemetry.Record, error)
}

// HealthChecker is a dependency reported by /health: the database and the
// MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SensorSource reports the sensor daemons. *process.Supervisor satisfies it.
type SensorSource interface {
	Stats() []process.Stats
}

// Authenticator checks operator credentials. *auth.Directory satisfies it.
type Authenticator interface {
	Authenticate(name, password string) (auth.Operator, error)
}

// AuditLog records operator actions. *audit.SQLiteRepository satisfies it.
type AuditLog interface {
	Record(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, f audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies of the API server. Only Logger and Machine
// are required; endpoints whose source is nil answer 503.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Machine      Machine
	Safety       SafetyChecker
	Status       StatusSource
	Observations ObservationSource
	History      HistorySource
	Sensors      SensorSource
	Metrics      http.Handler
	// Operators enables POST /auth/login.
	Operators Authenticator
	// TokenTTL is the lifetime of login tokens.
	TokenTTL time.Duration
	Audit    AuditLog
	// Checks are run by /health, keyed by the name reported.
	Checks map[string]HealthChecker

	// Hub is optional; when nil the server creates its own.
	Hub     *Hub
	Now     func() time.Time
	Version string
}

// Server is the operator HTTP API.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	version string
	now     func() time.Time

	machine      Machine
	safety       SafetyChecker
	status       StatusSource
	observations ObservationSource
	history      HistorySource
	sensors      SensorSource
	metrics      http.Handler
	operators    Authenticator
	tokenTTL     time.Duration
	audit        AuditLog
	checks       map[string]HealthChecker

	hub       *Hub
	tickets   *ticketStore
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates an API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Machine == nil {
		return nil, fmt.Errorf("machine is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		version:      deps.Version,
		now:          now,
		machine:      deps.Machine,
		safety:       deps.Safety,
		status:       deps.Status,
		observations: deps.Observations,
		history:      deps.History,
		sensors:      deps.Sensors,
		metrics:      deps.Metrics,
		operators:    deps.Operators,
		tokenTTL:     deps.TokenTTL,
		audit:        deps.Audit,
		checks:       deps.Checks,
		hub:          deps.Hub,
		tickets:      newTicketStore(),
		startTime:    now(),
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = defaultTokenTTL
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub so the machine and the status reporter can
// broadcast through it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background until Close or
// ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and closes it when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Close shuts the server down, waiting up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
