// Observatory - autonomous control core of a robotic telescope.
//
// The daemon loads the site configuration, brings up the devices, and runs
// the safety-gated control loop until it is interrupted. An interrupt parks
// the telescope before the process exits.
//
// Usage:
//
//	observatory                       run the control loop
//	observatory token ...             print a bearer token for the API
//	observatory hash-password < pass  print an Argon2id hash for security.operators
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-observatory/internal/api"
	"github.com/nerrad567/gray-logic-observatory/internal/audit"
	"github.com/nerrad567/gray-logic-observatory/internal/astro"
	"github.com/nerrad567/gray-logic-observatory/internal/auth"
	"github.com/nerrad567/gray-logic-observatory/internal/hardware"
	"github.com/nerrad567/gray-logic-observatory/internal/hardware/simulator"
	"github.com/nerrad567/gray-logic-observatory/internal/horizon"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-observatory/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-observatory/internal/machine"
	"github.com/nerrad567/gray-logic-observatory/internal/metrics"
	"github.com/nerrad567/gray-logic-observatory/internal/observatory"
	"github.com/nerrad567/gray-logic-observatory/internal/process"
	"github.com/nerrad567/gray-logic-observatory/internal/safety"
	"github.com/nerrad567/gray-logic-observatory/internal/scheduler"
	"github.com/nerrad567/gray-logic-observatory/internal/states"
	"github.com/nerrad567/gray-logic-observatory/internal/statetable"
	"github.com/nerrad567/gray-logic-observatory/internal/status"
	"github.com/nerrad567/gray-logic-observatory/internal/telemetry"
	"github.com/nerrad567/gray-logic-observatory/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// powerDownTimeout bounds the final park after the loop has ended.
const powerDownTimeout = 10 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "token":
		err = runToken(os.Args[2:], os.Stdout)
	case len(os.Args) > 1 && os.Args[1] == "hash-password":
		err = runHashPassword(os.Stdin, os.Stdout)
	default:
		err = run(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Cancelling ctx interrupts the control loop, which parks before run returns.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting observatory",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"site", cfg.Site.ID,
		"simulators", cfg.Simulators(),
	)

	if err := os.MkdirAll(cfg.Observatory.DataDir, 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	collector, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	records := telemetry.NewSQLiteStore(db.DB)
	if retention := cfg.GetHistoryRetention(); retention > 0 {
		pruned, pruneErr := records.PruneHistory(ctx, retention)
		if pruneErr != nil {
			log.Warn("pruning status history failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("pruned status history", "rows", pruned, "retention", retention)
		}
	}
	store := telemetry.NewPublisher(records)
	store.SetLogger(log.Component("telemetry"))

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		store.SetBroker(mqttClient)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, sensor readings come from simulators only")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		store.SetSeriesWriter(influxClient)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	observer := astro.NewObserver(astro.Location{
		Latitude:  cfg.Site.Location.Latitude,
		Longitude: cfg.Site.Location.Longitude,
		Elevation: cfg.Site.Location.Elevation,
	})

	sched, err := buildScheduler(cfg, observer, log, collector)
	if err != nil {
		return err
	}

	mount, cameras, dome, err := buildDevices(cfg, log, collector)
	if err != nil {
		return err
	}

	obs := observatory.New(observer, sched, mount, cameras, dome, observatory.Options{
		SlewTimeout:   cfg.GetSlewTimeout(),
		ParkTimeout:   cfg.GetParkTimeout(),
		DomeTimeout:   cfg.GetDomeTimeout(),
		ReadoutTime:   time.Duration(cfg.Devices.Camera.ReadoutTime) * time.Second,
		TimeoutMargin: time.Duration(cfg.Devices.Camera.TimeoutMargin) * time.Second,
		PollInterval:  cfg.GetPollInterval(),
	})
	obs.SetLogger(log.Component("observatory"))
	obs.SetRecorder(records)

	if err := obs.Initialize(ctx); err != nil {
		log.Error("observatory initialization failed, powering down", "error", err)
		powerDown(obs, log)
		return err
	}
	defer powerDown(obs, log)

	monitor := safety.New(store, observer, safety.Options{
		Horizons:     cfg.Observatory.Horizons,
		DataDir:      cfg.Observatory.DataDir,
		MinFreeSpace: cfg.GetMinFreeSpace(),
		WeatherStale: cfg.GetStaleLimit(telemetry.CollectionWeather),
		PowerStale:   cfg.GetStaleLimit(telemetry.CollectionPower),
		Simulators:   cfg.Simulators(),
	})
	monitor.SetLogger(log.Component("safety"))
	monitor.SetMetrics(collector)

	handlers := states.New(obs, monitor, states.Options{
		PointingExpTime:    cfg.GetPointingExpTime(),
		PointingIterations: cfg.Pointing.MaxIterations,
		ParkedWaitDelay:    cfg.GetParkedWaitDelay(),
		FlatCount:          cfg.Calibration.FlatCount,
		FlatExpTime:        cfg.GetFlatExpTime(),
		Horizons:           cfg.Observatory.Horizons,
	})
	handlers.SetLogger(log.Component("states"))

	table, err := loadStateTable(cfg.Observatory.StateTable)
	if err != nil {
		return fmt.Errorf("loading state table: %w", err)
	}

	m, err := machine.New(table, handlers.Map(), machine.Deps{
		Observatory: obs,
		Safety:      monitor,
		Store:       store,
	}, machine.Options{
		WaitDelay:             cfg.GetWaitDelay(),
		RetryDelay:            cfg.GetRetryDelay(),
		MaxTransitionAttempts: cfg.Observatory.MaxTransitionAttempts,
		RetryAttempts:         cfg.Observatory.RetryAttempts,
		RunOnce:               cfg.Observatory.RunOnce,
	})
	if err != nil {
		return fmt.Errorf("building state machine: %w", err)
	}
	m.SetLogger(log.Component("machine"))
	m.SetMetrics(collector)

	reporter := status.New(m, obs, store, cfg.GetStatusCheckInterval())
	reporter.SetLogger(log.Component("status"))

	supervisor := process.NewSupervisor(process.FromConfig(cfg, store))
	supervisor.SetLogger(log.Component("sensors"))

	var broadcasters fanout
	if influxClient != nil {
		broadcasters = append(broadcasters, transitionSeries{writer: influxClient})
	}

	var server *api.Server
	if cfg.API.Enabled {
		directory, err := auth.NewDirectory(cfg.Security.Operators)
		if err != nil {
			return fmt.Errorf("loading operators: %w", err)
		}
		var operators api.Authenticator
		if directory.Len() > 0 {
			operators = directory
		}
		checks := map[string]api.HealthChecker{"database": db}
		if mqttClient != nil {
			checks["mqtt"] = mqttClient
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		server, err = api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Security:     cfg.Security,
			Logger:       log.Component("api"),
			Machine:      m,
			Safety:       monitor,
			Status:       reporter,
			Observations: sched,
			History:      records,
			Sensors:      supervisor,
			Metrics:      collector.Handler(),
			Operators:    operators,
			Audit:        audit.NewSQLiteRepository(db.DB),
			Checks:       checks,
			TokenTTL:     cfg.GetTokenTTL(),
			Version:      version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		broadcasters = append(broadcasters, server.Hub())
		reporter.SetBroadcaster(server.Hub())
	}
	if len(broadcasters) > 0 {
		m.SetBroadcaster(broadcasters)
	}

	g, gctx := errgroup.WithContext(ctx)
	// Services outlive the loop only until it returns.
	svcCtx, stopServices := context.WithCancel(gctx)
	defer stopServices()

	g.Go(func() error {
		defer stopServices()
		err := m.Run(gctx, machine.RunOptions{
			ExitWhenDone:     cfg.Observatory.ExitWhenDone,
			RunOnce:          cfg.Observatory.RunOnce,
			InitialNextState: cfg.Observatory.InitialNextState,
		})
		if err != nil {
			return fmt.Errorf("control loop: %w", err)
		}
		return nil
	})
	g.Go(func() error { return reporter.Run(svcCtx) })
	g.Go(func() error { return supervisor.Run(svcCtx) })
	if mqttClient != nil {
		ingestor := telemetry.NewIngestor(store, mqttClient, byte(cfg.MQTT.QoS)) //nolint:gosec // qos validated 0-2
		ingestor.SetLogger(log.Component("ingestor"))
		g.Go(func() error { return ingestor.Run(svcCtx) })
	}
	if server != nil {
		g.Go(func() error { return server.Run(svcCtx) })
	}

	log.Info("initialisation complete, control loop running")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("observatory stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OBSERVATORY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OBSERVATORY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildScheduler creates the scheduler with the configured constraints and
// loads the field list.
func buildScheduler(cfg *config.Config, observer *astro.Observer, log *logging.Logger, collector *metrics.Collector) (*scheduler.Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading site timezone: %w", err)
	}
	hm, err := horizon.New(cfg.Observatory.HorizonLine.Default, cfg.Observatory.HorizonLine.Obstructions)
	if err != nil {
		return nil, fmt.Errorf("building horizon map: %w", err)
	}
	constraints, err := scheduler.BuildConstraints(cfg.Scheduler.Constraints, hm, loc)
	if err != nil {
		return nil, fmt.Errorf("building constraints: %w", err)
	}

	sched := scheduler.New(observer, constraints, scheduler.Options{
		FieldsFile:   cfg.Scheduler.FieldsFile,
		NightHorizon: cfg.Observatory.Horizons.Observe,
		MinAltitude:  cfg.Scheduler.MinObserveAltitude,
	})
	sched.SetLogger(log.Component("scheduler"))
	sched.SetMetrics(collector)

	if err := sched.ReadFieldList(); err != nil {
		return nil, fmt.Errorf("reading field list: %w", err)
	}
	log.Info("scheduler ready",
		"observations", len(sched.Observations()),
		"constraints", len(constraints),
	)
	return sched, nil
}

// buildDevices creates the mount, cameras and optional dome. Only simulated
// devices are available, so mount and camera must be listed in
// observatory.simulator.
func buildDevices(cfg *config.Config, log *logging.Logger, collector *metrics.Collector) (hardware.Mount, []hardware.Camera, hardware.Dome, error) {
	if !cfg.IsSimulated("mount") || !cfg.IsSimulated("camera") {
		return nil, nil, nil, fmt.Errorf("no device drivers available: observatory.simulator must include mount and camera")
	}

	opts := simulator.DefaultOptions()
	opts.Speedup = cfg.Devices.Simulator.Speedup
	opts.ReadoutTime = time.Duration(cfg.Devices.Camera.ReadoutTime) * time.Second
	opts.PollInterval = cfg.GetPollInterval()
	opts.DataDir = cfg.Observatory.DataDir

	devLog := log.Component("devices")

	mount := simulator.NewMount(opts)
	mount.SetLogger(devLog)
	mount.Runner().SetMetrics(collector)

	cameras := make([]hardware.Camera, 0, len(cfg.Devices.Cameras))
	for _, name := range cfg.Devices.Cameras {
		cam := simulator.NewCamera(name, opts)
		cam.SetLogger(devLog)
		cam.Runner().SetMetrics(collector)
		cameras = append(cameras, cam)
	}

	// A nil *simulator.Dome would be a non-nil hardware.Dome.
	var dome hardware.Dome
	if cfg.Devices.Dome.Enabled {
		d := simulator.NewDome(opts)
		d.SetLogger(devLog)
		d.Runner().SetMetrics(collector)
		dome = d
	}
	return mount, cameras, dome, nil
}

// loadStateTable reads the configured table, or the built-in one when path is empty.
func loadStateTable(path string) (*statetable.Table, error) {
	if path == "" {
		return statetable.Default()
	}
	return statetable.Load(filepath.Clean(path))
}

// powerDown parks the telescope with a fresh context, since the run context
// is usually cancelled by now.
func powerDown(obs *observatory.Observatory, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), powerDownTimeout)
	defer cancel()
	if err := obs.PowerDown(ctx); err != nil {
		log.Error("power down failed", "error", err)
	}
}
