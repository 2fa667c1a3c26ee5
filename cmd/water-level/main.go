// Command water-level measures a tank with an ultrasonic sensor, drives the
// fill relay inside scheduled windows, publishes readings to MQTT and serves
// a live level chart over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/water-level/internal/config"
	"github.com/sweeney/water-level/internal/gpio"
	"github.com/sweeney/water-level/internal/logger"
	"github.com/sweeney/water-level/internal/logic"
	"github.com/sweeney/water-level/internal/mqtt"
	"github.com/sweeney/water-level/internal/sonar"
	"github.com/sweeney/water-level/internal/status"
	"github.com/sweeney/water-level/internal/telemetry"
	"github.com/sweeney/water-level/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "water-level: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(cfg.Log.Level)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatalw("fatal", "error", err)
	}
}

// averager is the part of sonar.Aggregator the loop needs.
type averager interface {
	MeasureAverage(ctx context.Context) (float64, error)
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	logicCfg, err := cfg.Logic()
	if err != nil {
		return err
	}

	hw, err := gpio.NewRealHardware(cfg.Pins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Errorw("release gpio", "error", err)
			return
		}
		log.Infow("gpio released, relays off")
	}()

	// The lower relay is never driven; hold both off until the first reading.
	for _, r := range []gpio.Relay{gpio.RelayLower, gpio.RelayUpper} {
		if err := hw.SetRelay(r, false); err != nil {
			return fmt.Errorf("reset %s relay: %w", r, err)
		}
	}

	sampler := sonar.NewSampler(hw, cfg.Sensor.Temperature)
	agg := sonar.NewAggregator(sampler, cfg.Sonar(), log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// The loop sees the signal before the context is cancelled, so an
	// interrupted measurement still reports which signal stopped it.
	loopSig := make(chan os.Signal, 1)
	go func() {
		select {
		case s := <-sigCh:
			loopSig <- s
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.PrintState {
		return printState(ctx, agg, logicCfg, time.Now, os.Stdout)
	}

	publisher, mqttStatus, err := newPublisher(cfg, log)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(piHelperEnvFile); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.SetMQTTConnected(mqttStatus.IsConnected())

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warnw("failed to publish startup event", "error", err)
	} else {
		log.Infow("published startup event")
	}

	points := telemetry.NewBuffer(cfg.Telemetry.Capacity)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, points, log)
		g.Go(func() error {
			log.Infow("http dashboard listening", "addr", cfg.HTTP)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Infow("started",
		"interval", cfg.Poll.Interval,
		"samples", cfg.Poll.Samples,
		"schedule", cfg.Schedule,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll.Interval)
	defer ticker.Stop()

	d := &daemon{
		hw:          hw,
		agg:         agg,
		ctl:         logic.NewController(logicCfg, time.Now()),
		points:      points,
		publisher:   publisher,
		mqttStatus:  mqttStatus,
		tracker:     tracker,
		heartbeat:   cfg.Heartbeat,
		networkFile: piHelperEnvFile,
		now:         time.Now,
		log:         log,
	}
	g.Go(func() error {
		defer cancel()
		return d.runLoop(gctx, ticker.C, loopSig)
	})

	return g.Wait()
}

func newPublisher(cfg *config.Config, log *zap.SugaredLogger) (mqtt.Publisher, mqtt.ConnectionStatus, error) {
	if !cfg.MQTTEnabled() {
		log.Infow("mqtt disabled")
		return mqtt.NopPublisher{}, mqtt.NopPublisher{}, nil
	}
	p, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		IntervalMs:  cfg.Poll.Interval.Milliseconds(),
		Samples:     cfg.Poll.Samples,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP,
		Schedule:    cfg.Schedule,
		TankHeight:  cfg.Tank.Height,
		Upper:       logic.Thresholds{Low: cfg.Tank.Upper.Low, High: cfg.Tank.Upper.High},
		Lower:       logic.Thresholds{Low: cfg.Tank.Lower.Low, High: cfg.Tank.Lower.High},
	}
}

// printState takes one interval reading and prints it.
func printState(ctx context.Context, agg averager, cfg logic.Config, now func() time.Time, w io.Writer) error {
	distance, err := agg.MeasureAverage(ctx)
	if err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	schedule := "idle"
	if logic.Active(now(), cfg.Schedule) {
		schedule = "active"
	}
	fmt.Fprintf(w, "Distance: %.1f cm, Level: %.1f%%, Upper: %s, Lower: %s, Schedule: %s\n",
		distance,
		logic.FillLevel(distance, cfg.TankHeight)*100,
		logic.Classify(distance, cfg.Upper),
		logic.Classify(distance, cfg.Lower),
		schedule)
	return nil
}

// daemon holds everything the control loop touches.
type daemon struct {
	hw          gpio.Hardware
	agg         averager
	ctl         *logic.Controller
	points      *telemetry.Buffer
	publisher   mqtt.Publisher
	mqttStatus  mqtt.ConnectionStatus
	tracker     *status.Tracker
	heartbeat   time.Duration
	networkFile string
	now         func() time.Time
	log         *zap.SugaredLogger
}

// runLoop takes one interval reading per tick until a signal arrives or ctx
// is cancelled, then publishes SHUTDOWN. Hardware faults end the loop with an
// error; sensor starvation and publish failures do not.
func (d *daemon) runLoop(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			d.shutdown(signalName(s))
			return nil

		case <-ctx.Done():
			d.shutdown(shutdownReason(sig))
			return nil

		case <-tick:
			if err := d.step(ctx); err != nil {
				if ctx.Err() != nil {
					d.shutdown(shutdownReason(sig))
					return nil
				}
				return err
			}
		}
	}
}

// step runs one control iteration: measure, decide, actuate, report.
func (d *daemon) step(ctx context.Context) error {
	distance, err := d.agg.MeasureAverage(ctx)
	t := d.now()
	switch {
	case errors.Is(err, sonar.ErrNoReading):
		d.log.Warnw("skipping interval, relay unchanged", "error", err)
		d.ctl.Starve()
		d.updateTracker(d.ctl.Relay())
		return nil
	case err != nil:
		return fmt.Errorf("measure: %w", err)
	}

	events := d.ctl.Process(logic.Input{Distance: distance, Time: t})
	d.points.Append(telemetry.Point{Time: t, Level: events[0].Level})

	relay := d.ctl.Relay()
	if err := d.hw.SetRelay(gpio.RelayUpper, relay.On); err != nil {
		return fmt.Errorf("drive %s relay: %w", gpio.RelayUpper, err)
	}

	for _, event := range events {
		if event.Type == logic.EventReading {
			d.log.Debugw("reading",
				"distance_cm", event.Distance,
				"level", event.Level,
				"upper", event.Upper,
				"lower", event.Lower,
				"active", event.Active)
		} else {
			d.log.Infow("relay switched",
				"event", event.Type,
				"distance_cm", event.Distance,
				"upper", event.Upper,
				"lower", event.Lower,
				"active", event.Active)
		}
		if err := d.publisher.Publish(event); err != nil {
			// Don't stop the loop on publish failure
			d.log.Warnw("publish error", "event", event.Type, "error", err)
		}
	}

	d.updateTracker(relay)

	if hb := d.ctl.CheckHeartbeat(t, d.heartbeat); hb != nil {
		d.log.Infow("heartbeat",
			"uptime", hb.Uptime,
			"readings", hb.Counts.Readings,
			"starved", hb.Counts.Starved,
			"relay_on", hb.Counts.RelayOn,
			"relay_off", hb.Counts.RelayOff)

		// Refresh network info for heartbeat
		if net := readNetworkInfo(d.networkFile); net != nil {
			d.tracker.SetNetwork(net)
		}
		snap := d.tracker.Snapshot()
		hbEvent := mqtt.SystemEvent{
			Timestamp:  hb.Timestamp,
			Event:      mqtt.EventHeartbeat,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventHeartbeat, ""),
		}
		if err := d.publisher.PublishSystem(hbEvent); err != nil {
			d.log.Warnw("heartbeat publish error", "error", err)
		}
	}
	return nil
}

// updateTracker publishes controller state to the tracker, reporting relay
// as the output actually driven.
func (d *daemon) updateTracker(relay logic.RelayState) {
	upper, lower := d.ctl.CurrentState()
	var last *logic.Event
	if e, ok := d.ctl.LastReading(); ok {
		last = &e
	}
	d.tracker.Update(upper, lower, relay, last, d.ctl.EventCountsSnapshot())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// shutdown switches the fill relay off and publishes SHUTDOWN with a final
// status snapshot.
func (d *daemon) shutdown(reason string) {
	d.log.Infow("shutting down", "reason", reason)

	if err := d.hw.SetRelay(gpio.RelayUpper, false); err != nil {
		d.log.Errorw("switch relay off", "error", err)
	}
	d.updateTracker(logic.RelayState{})

	snap := d.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  d.now(),
		Event:      mqtt.EventShutdown,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, reason),
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		d.log.Warnw("failed to publish shutdown event", "error", err)
	} else {
		d.log.Infow("published shutdown event")
	}
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

// shutdownReason names the pending signal, if one is queued, otherwise
// reports a plain cancellation.
func shutdownReason(sig <-chan os.Signal) string {
	select {
	case s := <-sig:
		return signalName(s)
	default:
		return "CANCELLED"
	}
}

// piHelperEnvFile is where pi-helper writes the current network state.
const piHelperEnvFile = "/run/pi-helper.env"

// pi-helper env var names.
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo reads network state from the pi-helper env file, falling
// back to the process environment for keys the file does not set.
func readNetworkInfo(path string) *status.NetworkInfo {
	env, err := godotenv.Read(path)
	if err != nil {
		env = map[string]string{}
	}
	get := func(key string) string {
		if v, ok := env[key]; ok {
			return v
		}
		return os.Getenv(key)
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}
