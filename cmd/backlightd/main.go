package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("backlightd v%s\n", version)
	fmt.Println("Background brightness daemon for sysfs backlights")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  backlightd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that drives a sysfs backlight (keyboard or display) from")
	fmt.Println("  per-profile rules: manual overrides, video playback dimming,")
	fmt.Println("  AC-power full brightness, time-of-day schedules and idle timeouts.")
	fmt.Println("  Profiles can be bound to Wi-Fi networks for automatic switching.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; flags override file values)")
	fmt.Println()
	fmt.Println("  -backlight-dir string")
	fmt.Println("        Sysfs backlight directory holding brightness/max_brightness")
	fmt.Printf("        (default %q)\n", DefaultConfig().Backlight.Dir)
	fmt.Println()
	fmt.Println("  -profiles-dir string")
	fmt.Printf("        Profile store directory (default %q)\n", DefaultConfig().Profiles.Dir)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for the control plane (default %q)\n", DefaultConfig().IPC.SocketPath)
	fmt.Println()
	fmt.Println("  -web-addr string")
	fmt.Println("        Enable the WebSocket state stream on this address (e.g. 127.0.0.1:3201)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start daemon with default settings")
	fmt.Println("  backlightd")
	fmt.Println()
	fmt.Println("  # Drive a display backlight instead of the keyboard one")
	fmt.Println("  backlightd -backlight-dir /sys/class/backlight/intel_backlight")
	fmt.Println()
	fmt.Println("  # Enable the live state stream for dashboards")
	fmt.Println("  backlightd -web-addr 127.0.0.1:3201")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires write access to the brightness file (run as root or add")
	fmt.Println("    user to the 'video' group)")
	fmt.Println("  - Idle detection reads /dev/input/event* ('input' group)")
	fmt.Println("  - Use backlightctl to inspect and control a running daemon")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "Path to YAML config file")
		backlightDir = flag.String("backlight-dir", "", "Sysfs backlight directory")
		profilesDir  = flag.String("profiles-dir", "", "Profile store directory")
		ipcSocket    = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		webAddr      = flag.String("web-addr", "", "WebSocket state stream listen address (empty = disabled)")
		logLevelStr  = flag.String("log-level", "", "Log level: error, warn, info, debug")
		showVersion  = flag.Bool("version", false, "Print version and exit")
		showHelp     = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Config precedence: defaults < file < flags.
	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var overrides FlagOverrides
	if *backlightDir != "" {
		overrides.BacklightDir = backlightDir
	}
	if *profilesDir != "" {
		overrides.ProfilesDir = profilesDir
	}
	if *ipcSocket != "" {
		overrides.IPCSocketPath = ipcSocket
	}
	if *webAddr != "" {
		enabled := true
		overrides.WebEnabled = &enabled
		overrides.WebListenAddr = webAddr
	}
	if *logLevelStr != "" {
		overrides.LogLevel = logLevelStr
	}
	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel)

	// Open the backlight first. Without a writable brightness file there is
	// nothing to daemonize for.
	backlight, err := NewBacklight(ExpandPath(cfg.Backlight.Dir), componentLogger(logger, "backlight"))
	if err != nil {
		logger.Error("failed to open backlight", "dir", cfg.Backlight.Dir, "error", err)
		os.Exit(1)
	}

	socketPath := ExpandPath(cfg.IPC.SocketPath)
	storeDir := ExpandPath(cfg.Profiles.Dir)
	store, err := LoadStore(storeDir)
	if err != nil {
		logger.Error("failed to load profile store", "dir", storeDir, "error", err)
		os.Exit(1)
	}
	if err := store.Validate(backlight.MaxLevel()); err != nil {
		logger.Error("profile store invalid", "dir", storeDir, "error", err)
		os.Exit(1)
	}
	// Persist the seeded default profile on first run.
	if err := store.SaveAll(); err != nil {
		logger.Error("failed to persist profile store", "dir", storeDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan Event, 64)

	supervisor := NewSupervisor(ctx, events, newSourceFactory(cfg), componentLogger(logger, "monitors"))

	state := &DaemonState{
		Store:    store,
		MaxLevel: backlight.MaxLevel(),
	}

	deps := effectDeps{
		backlight:  backlight,
		supervisor: supervisor,
	}

	var wsServer *Server
	if cfg.Web.Enabled {
		wsServer = NewServer(componentLogger(logger, "ws"), events, ServerConfig{})
		deps.hub = wsServer.Hub()
	}

	logger.Info("starting backlightd",
		"version", version,
		"backlight_dir", cfg.Backlight.Dir,
		"max_level", backlight.MaxLevel(),
		"profiles_dir", storeDir,
		"active_profile", store.Active.ActiveProfile,
		"ipc_socket", socketPath,
		"web_enabled", cfg.Web.Enabled)

	// Start adapters for the active profile before the first evaluation.
	supervisor.Apply(state.MonitorParams())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, deps, state, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(gctx, socketPath, events, componentLogger(logger, "ipc"))
	})

	g.Go(func() error {
		return runStoreWatcher(gctx, storeDir, backlight.MaxLevel(), events, componentLogger(logger, "store"))
	})

	if wsServer != nil {
		g.Go(func() error {
			wsServer.Hub().Run(gctx)
			return nil
		})

		mux := http.NewServeMux()
		wsServer.Register(mux, "/ws")
		httpSrv := &http.Server{Addr: cfg.Web.ListenAddr, Handler: mux}

		g.Go(func() error {
			logger.Info("ws state stream listening", "addr", cfg.Web.ListenAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("daemon exited with error", "error", err)
		supervisor.Stop()
		os.Exit(1)
	}

	supervisor.Stop()
	logger.Info("shutdown complete")
}
