// Command light-controller drives a dimmable light from a push-button, a
// light sensor, HTTP and MQTT, and persists its settings across restarts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-controller/internal/clock"
	"github.com/sweeney/light-controller/internal/config"
	"github.com/sweeney/light-controller/internal/control"
	"github.com/sweeney/light-controller/internal/gpio"
	"github.com/sweeney/light-controller/internal/logging"
	"github.com/sweeney/light-controller/internal/logic"
	"github.com/sweeney/light-controller/internal/mqtt"
	"github.com/sweeney/light-controller/internal/ota"
	"github.com/sweeney/light-controller/internal/settings"
	"github.com/sweeney/light-controller/internal/status"
	"github.com/sweeney/light-controller/internal/web"
)

// exitRestart is the exit status used when the device asks to be
// restarted. The service unit restarts on any non-zero status.
const exitRestart = 3

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (built-in defaults when empty)")
	printState := flag.Bool("print-state", false, "Print button, sensor and stored settings, then exit")
	httpAddr := flag.String("http", "", `HTTP control address, overrides config ("off" disables)`)
	broker := flag.String("broker", "", `MQTT broker address, overrides config ("off" disables)`)
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	applyOverrides(cfg, *httpAddr, *broker, *logLevel)

	logCloser := logging.Setup(cfg.Log)
	err = run(cfg, *printState)
	logCloser.Close()

	switch {
	case errors.Is(err, control.ErrRestartRequested):
		log.Info().Msg("exiting for restart")
		os.Exit(exitRestart)
	case err != nil:
		log.Fatal().Err(err).Msg("fatal")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// applyOverrides lets flags win over the file. "off" clears an address.
func applyOverrides(cfg *config.Config, httpAddr, broker, logLevel string) {
	override := func(dst *string, v string) {
		switch v {
		case "":
		case "off":
			*dst = ""
		default:
			*dst = v
		}
	}
	override(&cfg.HTTP.Addr, httpAddr)
	override(&cfg.MQTT.Broker, broker)
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}

func run(cfg *config.Config, printState bool) error {
	hw, err := openHardware(cfg.Hardware)
	if err != nil {
		return err
	}
	defer hw.Close()

	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()

	if printState {
		return writeState(os.Stdout, hw, store)
	}

	defaults := logic.DefaultSettings()
	defaults.DeviceName = cfg.Device.Name
	stored, err := store.LoadOrInit(defaults)
	if err != nil {
		log.Error().Err(err).Msg("could not persist default settings")
	}

	driver, err := logic.NewDriver(hw.pwm, hw.indicator)
	if err != nil {
		return fmt.Errorf("init output: %w", err)
	}
	clk := clock.NewMonotonic()
	light := logic.NewLight(stored, driver, store, clk)

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      cfg.Loop.Tick.Duration().Milliseconds(),
		HeartbeatMs: cfg.Loop.Heartbeat.Duration().Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
		Storage:     cfg.Storage.Backend,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(light.Snapshot(), 0, false)

	deps := control.Deps{
		Clock:  clk,
		Button: hw.button,
		Sensor: hw.sensor,
		Light:  light,
		Policy: logic.NewModePolicy(logic.PolicyConfig{
			DarkBelow:   cfg.Modes.DarkBelow,
			BrightAbove: cfg.Modes.BrightAbove,
			TimerOffMs:  cfg.Modes.TimerOff.Millis(),
		}),
		Tracker: tracker,
	}

	// MQTT
	var publisher mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		pub := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Topics:     mqtt.NewTopics(cfg.MQTT.TopicPrefix, stored.DeviceName),
			OutboxSize: cfg.MQTT.OutboxSize,
			OnCommand:  mqtt.CommandHandler(light),
		})
		defer pub.Close()
		publisher = pub

		reporter := mqtt.NewReporter(pub, pub, tracker, cfg.Loop.Heartbeat.Millis())
		reporter.OnHeartbeat(func() {
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
		})
		deps.Services = append(deps.Services, reporter)
		log.Info().Str("broker", cfg.MQTT.Broker).Msg("mqtt enabled")
	}

	// Firmware updates
	if cfg.Update.Dir != "" {
		watcher, err := ota.NewDirWatcher(ota.WatcherConfig{
			Dir:            cfg.Update.Dir,
			FirmwarePath:   cfg.Update.FirmwarePath,
			FilesystemPath: cfg.Update.FilesystemPath,
		})
		if err != nil {
			return fmt.Errorf("init update watcher: %w", err)
		}
		defer watcher.Close()
		deps.Updates = watcher
		deps.OnUpdate = func(ev ota.Event) {
			if ev.Kind == ota.KindProgress {
				return
			}
			reason := ev.Kind.String()
			publishSystem(publisher, tracker, "UPDATE", reason)
		}
		log.Info().Str("dir", cfg.Update.Dir).Msg("watching for updates")
	}

	loop := control.New(deps)
	light.SetResetHook(func() {
		if cfg.Modes.EraseOnReset {
			if err := store.Erase(); err != nil {
				log.Error().Err(err).Msg("erase settings failed")
			}
		}
		loop.RequestRestart()
	})

	publishSystem(publisher, tracker, "STARTUP", "")

	// HTTP control surface
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, light)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http control server listening")
	}

	log.Info().
		Str("device", stored.DeviceName).
		Stringer("mode", stored.Mode).
		Float64("target", stored.TargetBrightness).
		Dur("tick", cfg.Loop.Tick.Duration()).
		Msg("started")

	ticker := time.NewTicker(cfg.Loop.Tick.Duration())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loop, publisher, tracker, ticker.C, sigCh)
}

// runLoop ticks until a signal arrives or the loop asks for a restart, and
// publishes a SHUTDOWN event either way.
func runLoop(loop *control.Loop, publisher mqtt.Publisher, tracker *status.Tracker, tick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reason := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Info().Stringer("signal", s).Msg("shutting down")
			reason <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	err := loop.Run(ctx, tick)
	switch {
	case err == nil:
		publishSystem(publisher, tracker, "SHUTDOWN", <-reason)
	case errors.Is(err, control.ErrRestartRequested):
		publishSystem(publisher, tracker, "SHUTDOWN", "RESTART")
	default:
		publishSystem(publisher, tracker, "SHUTDOWN", "ERROR")
	}
	return err
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// publishSystem sends a lifecycle event carrying a full status snapshot.
// A nil publisher means MQTT is disabled.
func publishSystem(publisher mqtt.Publisher, tracker *status.Tracker, event, reason string) {
	if publisher == nil {
		return
	}
	if conn, ok := publisher.(mqtt.ConnectionStatus); ok {
		tracker.SetMQTTConnected(conn.IsConnected())
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "UPDATE",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Str("reason", reason).Msg("published system event")
}

// hardware groups the device collaborators. indicator and sensor are
// nil when not configured.
type hardware struct {
	button    gpio.DigitalIn
	indicator gpio.DigitalOut
	pwm       gpio.AnalogOut
	sensor    gpio.AnalogIn
}

func openHardware(c config.HardwareConfig) (_ *hardware, err error) {
	hw := &hardware{}
	defer func() {
		if err != nil {
			hw.Close()
		}
	}()

	button, err := gpio.NewRealInput(c.Chip, c.ButtonPin)
	if err != nil {
		return nil, fmt.Errorf("init button: %w", err)
	}
	hw.button = button

	if c.IndicatorPin >= 0 {
		ind, err := gpio.NewRealOutput(c.Chip, c.IndicatorPin)
		if err != nil {
			return nil, fmt.Errorf("init indicator: %w", err)
		}
		hw.indicator = ind
	}

	pwm, err := gpio.NewSysfsPWM(gpio.PWMConfig{
		ChipDir:   c.PWMChip,
		Channels:  c.PWMChannels,
		Period:    c.PWMPeriod.Duration(),
		MaxDuty:   c.DutyMax,
		ActiveLow: c.ActiveLow,
	})
	if err != nil {
		return nil, fmt.Errorf("init pwm: %w", err)
	}
	hw.pwm = pwm

	if c.ADCPath != "" {
		adc, err := gpio.NewIIOADC(c.ADCPath, c.ADCBits)
		if err != nil {
			return nil, fmt.Errorf("init light sensor: %w", err)
		}
		hw.sensor = adc
	}
	return hw, nil
}

// Close releases every opened resource. The PWM is closed first so the
// light goes dark before anything else is released.
func (h *hardware) Close() {
	for _, c := range []io.Closer{h.pwm, h.indicator, h.sensor, h.button} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close hardware")
		}
	}
}

func openStore(c config.StorageConfig) (*settings.Store, func(), error) {
	switch c.Backend {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create storage dir: %w", err)
		}
		img, err := settings.OpenSQLiteImage(c.Path, c.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("open settings: %w", err)
		}
		return settings.NewStore(img), func() { img.Close() }, nil
	default:
		img, err := settings.OpenFileImage(c.Path, c.Size)
		if err != nil {
			return nil, nil, fmt.Errorf("open settings: %w", err)
		}
		return settings.NewStore(img), func() {}, nil
	}
}

// writeState prints a one-shot view of the inputs and stored settings.
func writeState(w io.Writer, hw *hardware, store *settings.Store) error {
	level, err := hw.button.Read()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	pressed := "RELEASED"
	if level == gpio.Low {
		pressed = "PRESSED"
	}
	fmt.Fprintf(w, "Button: %s (%s)\n", pressed, level)

	if hw.sensor != nil {
		raw, err := hw.sensor.ReadRaw()
		if err != nil {
			return fmt.Errorf("read light sensor: %w", err)
		}
		s := logic.NewSampler()
		s.Record(raw)
		fmt.Fprintf(w, "Light level: %.1f%% (raw %d)\n", s.Percentage(), raw)
	} else {
		fmt.Fprintln(w, "Light level: no sensor")
	}

	if st, ok := store.Load(); ok {
		fmt.Fprintf(w, "Settings: name=%q target=%.0f%% mode=%s\n", st.DeviceName, st.TargetBrightness, st.Mode)
	} else {
		fmt.Fprintln(w, "Settings: none stored")
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
