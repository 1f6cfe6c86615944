package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/CodedInternet/gowl/comms"
	"github.com/CodedInternet/gowl/onboard"
	"github.com/CodedInternet/gowl/onboard/canbus"
	"github.com/CodedInternet/gowl/onboard/config"
	"github.com/CodedInternet/gowl/onboard/control"
	deverrors "github.com/CodedInternet/gowl/onboard/errors"
	"github.com/CodedInternet/gowl/onboard/hardware"
	"github.com/CodedInternet/gowl/onboard/settings"
)

type EnvConfig struct {
	ConfigDir string `env:"GOWL_CONFIG_DIR" envDefault:"./config"`
	DBPath    string `env:"GOWL_DB" envDefault:"./tmp/gowl.db"`
	JWTIssuer string `env:"GOWL_DEVICE_UUID" envDefault:"DEV"`
	JWTSecret string `env:"GOWL_JWT_SECRET" envDefault:"xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI="`
	GPIO      string `env:"GOWL_GPIO" envDefault:"log"` // log or chip
	GPIOChip  string `env:"GOWL_GPIO_CHIP" envDefault:"gpiochip0"`
	Debug     bool   `env:"DEBUG" envDefault:"false"`

	DB        *storm.DB
	Store     *config.Store
	Config    *config.Handle
	State     *control.State
	Sprayer   *onboard.Sprayer
	Nodes     *hardware.Directory
	Conductor *comms.Conductor
}

var (
	ENV    *EnvConfig
	logger = slog.Default()
)

func init() {
	ENV = new(EnvConfig)
	if err := env.Parse(ENV); err != nil {
		panic(err)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	showDisplay := flag.Bool("show-display", false, "Stream actuation events on /ws/events")
	input := flag.String("input", "", "Replay file (.yaml), image file or directory, or 'synthetic'")
	configPath := flag.String("config", "", "Path to a configuration file")
	configIndex := flag.Int("config-index", 1, "Index of the configuration to start with")
	shell := flag.Bool("shell", false, "Start the operator shell")
	listen := flag.String("listen", "", "Specify the ip:port for the control API, empty disables it")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	ENV.Debug = ENV.Debug || *debug
	logger = newLogger(ENV.Debug)
	slog.SetDefault(logger)

	os.Exit(run(*showDisplay, *input, *configPath, *configIndex, *shell, *listen))
}

func run(showDisplay bool, input, configPath string, configIndex int, shell bool, listen string) int {
	db, err := openDb(ENV.DBPath)
	if err != nil {
		logger.Error("unable to open database", "path", ENV.DBPath, "err", err)
		return 1
	}
	defer db.Close() // close database when finished
	ENV.DB = db

	ENV.Store = config.NewStore(ENV.ConfigDir, logger)
	snap, err := loadInitial(ENV.Store, configPath, configIndex)
	if err != nil {
		logger.Error("unable to load configuration", "err", err)
		return 1
	}
	ENV.Config = config.NewHandle(snap)
	if input == "" {
		input = snap.System.Input
	}

	//---
	// CAN bus and remote nodes
	//---
	var link *canbus.Link
	if snap.CANBus.Enable {
		link = canbus.Open(snap.CANBus.Interface, snap.CANBus.Bitrate, logger)
	} else {
		link = canbus.NewLink(nil, logger)
	}
	ENV.Nodes = hardware.NewDirectory(link, logger)
	ENV.Nodes.OnSettings(func(node uint8, m settings.Map) {
		logger.Info("node settings received", "node", node, "settings", m)
	})

	//---
	// Relays and panel
	//---
	var out hardware.Output = hardware.NewLogOutput(logger)
	if ENV.GPIO == "chip" {
		chip := hardware.NewChipOutput(ENV.GPIOChip, false)
		defer chip.Close()
		out = chip
	}
	buzzer := snap.System.BuzzerPin
	if buzzer <= 0 {
		buzzer = hardware.NoBuzzer
	}
	relays := hardware.NewRelayController(hardware.RelayMap(snap.Relays), buzzer, out, logger)

	ENV.State = &control.State{}
	sprayer := onboard.NewSprayer(ENV.Config, ENV.Store, logger)
	sprayer.Relays = relays
	sprayer.State = ENV.State
	sprayer.Link = link
	sprayer.Nodes = ENV.Nodes
	sprayer.Recorder = onboard.NewRecorder(db, logger)

	if snap.Controller.Enable {
		purpose := control.Purpose(snap.Controller.SwitchPurpose)
		mainSwitch := hardware.NewChipSwitch(ENV.GPIOChip, snap.Controller.SwitchPin, snap.Controller.ActiveLow)
		defer mainSwitch.Close()
		var stopBtn control.Switch
		if snap.Controller.StopPin > 0 {
			btn := hardware.NewChipSwitch(ENV.GPIOChip, snap.Controller.StopPin, snap.Controller.ActiveLow)
			defer btn.Close()
			stopBtn = btn
		}
		watcher := control.NewWatcher(ENV.State, purpose, mainSwitch, stopBtn, logger)
		watcher.Start()
		sprayer.Watcher = watcher
		sprayer.Purpose = purpose
	}

	if snap.Telemetry.NatsURL != "" {
		telemetry := onboard.NewTelemetry(snap.Telemetry.Subject, logger)
		if err := telemetry.Connect(snap.Telemetry.NatsURL); err != nil {
			logger.Warn("telemetry disabled", "err", err)
		}
		defer telemetry.Close()
		sprayer.Sinks = append(sprayer.Sinks, telemetry)
	}

	if showDisplay {
		ENV.Conductor = comms.NewConductor(sprayer, ENV.Nodes, logger)
		sprayer.Sinks = append(sprayer.Sinks, ENV.Conductor)
		sprayer.Display = ENV.Conductor
	}

	width, height, _ := snap.Resolution()
	sprayer.Source, sprayer.Detectors, err = openSource(input, width, height)
	if err != nil {
		logger.Error("unable to open frame source", "input", input, "err", err)
		sprayer.Shutdown()
		return 1
	}
	ENV.Sprayer = sprayer

	if shell {
		go newShell().Start()
	}

	//---
	// Run the loop and API together
	//---
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return sprayer.Run(gctx)
	})

	if listen != "" {
		srv := &http.Server{Addr: listen, Handler: newRouter()}
		g.Go(func() error {
			logger.Info("listening", "addr", listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		var initErr deverrors.DetectorInitError
		if errors.As(err, &initErr) {
			logger.Error("detector failed to start", "err", err)
		} else {
			logger.Error("exiting", "err", err)
		}
		return 1
	}
	return 0
}

// loadInitial picks the starting snapshot: an explicit path, then the indexed
// file, then the built in defaults.
func loadInitial(store *config.Store, path string, index int) (*config.Snapshot, error) {
	if path != "" {
		return store.LoadPath(path)
	}

	snap, err := store.Load(index)
	if err != nil {
		logger.Warn("using default configuration", "index", index, "err", err)
		snap = config.Default()
	}
	return snap, snap.Validate()
}

// openSource maps -input to a frame source and the detectors that suit it.
// Recorded and synthetic frames carry their own detections.
func openSource(input string, width, height int) (onboard.Source, onboard.Detectors, error) {
	recorded := onboard.Detectors{
		onboard.FamilyGreenOnBrown: onboard.NewReplayDetector,
		onboard.FamilyGreenOnGreen: onboard.NewReplayDetector,
	}

	switch ext := strings.ToLower(filepath.Ext(input)); {
	case input == "" || input == "synthetic":
		return onboard.NewSimulatedSource(width, height, time.Now().UnixNano()), recorded, nil

	case ext == ".yaml" || ext == ".yml":
		src, err := onboard.OpenReplay(input)
		return src, recorded, err

	default:
		src, err := onboard.OpenImages(input, time.Second, width, height)
		return src, onboard.Detectors{onboard.FamilyGreenOnBrown: onboard.NewGreenOnBrown}, err
	}
}

func newRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Route("/api", apiRoutes)

	r.Route("/ws", func(r chi.Router) {
		if !ENV.Debug {
			r.Use(ValidateJWT)
		} else {
			logger.Warn("running in debug mode, websocket authentication disabled")
		}
		r.Get("/events", EventsHandler)
	})

	return r
}

func openDb(dbFile string) (db *storm.DB, err error) {
	if dir := filepath.Dir(dbFile); dir != "" {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&Operator{}); err != nil {
		return nil, err
	}
	if err := db.Init(&onboard.Sample{}); err != nil {
		return nil, err
	}

	return
}
