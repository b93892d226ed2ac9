// Command motioncore runs the swerve motion core on a simulated chassis and
// serves its debug endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/blackknights-robotics/motioncore/internal/config"
	"github.com/blackknights-robotics/motioncore/internal/monitoring"
	"github.com/blackknights-robotics/motioncore/internal/nettable"
	"github.com/blackknights-robotics/motioncore/internal/robot"
	"github.com/blackknights-robotics/motioncore/internal/serialmux"
	"github.com/blackknights-robotics/motioncore/internal/telemetry"
	"github.com/blackknights-robotics/motioncore/internal/timeutil"
	"github.com/blackknights-robotics/motioncore/internal/version"
)

var (
	listen       = flag.String("listen", ":8080", "Debug HTTP listen address")
	robotConfig  = flag.String("config", "", "Robot constants JSON file (defaults when empty)")
	tunablesPath = flag.String("tunables", "", "Tunables JSON file (defaults when empty)")
	layoutPath   = flag.String("layout", "", "AprilTag field layout JSON (built-in practice layout when empty)")
	camera       = flag.String("camera", "photon", "Simulated camera kind: photon, limelight or none")
	imuPort      = flag.String("imu", "", "navX serial device, \"mock\" for a canned stream, empty to use the simulated gyro")
	imuBaud      = flag.Int("imu-baud", serialmux.DefaultBaudRate, "navX baud rate")
	redisAddr    = flag.String("redis", "", "Redis address for network tables (disabled when empty)")
	mqttBroker   = flag.String("mqtt-broker", "", "MQTT broker host for telemetry (disabled when empty)")
	mqttPort     = flag.Int("mqtt-port", 1883, "MQTT broker port")
	mqttTopic    = flag.String("mqtt-topic", "motioncore/telemetry", "MQTT telemetry topic prefix")
	recordPath   = flag.String("record", "", "SQLite file to record telemetry into (disabled when empty)")
	runLabel     = flag.String("label", "sim", "Label stored with the recorded run")
	debugLogs    = flag.Bool("debug", false, "Enable debug logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("motioncore", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *debugLogs {
		monitoring.SetLevel(monitoring.LevelDebug)
	}

	rc := config.EmptyRobotConfig()
	if *robotConfig != "" {
		var err error
		if rc, err = config.LoadRobotConfig(*robotConfig); err != nil {
			log.Fatalf("failed to load robot config: %v", err)
		}
	}
	store := config.NewStore()
	if *tunablesPath != "" {
		var err error
		if store, err = config.OpenStore(*tunablesPath); err != nil {
			log.Fatalf("failed to load tunables: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	mono := timeutil.NewMonotonic(clock)
	loop := robot.NewLoop(clock)
	var wg sync.WaitGroup

	// background runs fn until ctx is cancelled, logging any failure.
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s stopped: %v", name, err)
			}
			log.Printf("%s routine terminated", name)
		}()
	}

	var (
		driver    nettable.Table = nettable.NewMemory()
		limelight table          = nettable.NewMemory()
		tableOut  nettable.Writer
	)
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		loop.AddCloser(client)
		tables := map[string]*nettable.RedisTable{
			"driver":    nettable.NewRedisTable(client, "driver"),
			"limelight": nettable.NewRedisTable(client, "limelight"),
			"telemetry": nettable.NewRedisTable(client, "telemetry"),
		}
		for name, t := range tables {
			background("table "+name, t.Run)
		}
		driver, limelight, tableOut = tables["driver"], tables["limelight"], tables["telemetry"]
		log.Printf("network tables mirrored through redis at %s", *redisAddr)
	}

	fanout := telemetry.NewFanout()
	loop.AddCloser(fanout)
	if tableOut != nil {
		fanout.Add(telemetry.NewTablePublisher(tableOut))
	}
	if *mqttBroker != "" {
		mq, err := telemetry.DialMQTT(telemetry.MQTTConfig{
			Broker:   *mqttBroker,
			Port:     *mqttPort,
			Topic:    *mqttTopic,
			ClientID: "motioncore-" + *runLabel,
		})
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		fanout.Add(mq)
	}

	var archive *telemetry.Archive
	if *recordPath != "" {
		var err error
		if archive, err = telemetry.OpenArchive(*recordPath); err != nil {
			log.Fatalf("failed to open telemetry archive: %v", err)
		}
		defer archive.Close()
		rec, err := telemetry.NewRecorder(archive, telemetry.RecorderConfig{Label: *runLabel, Clock: mono})
		if err != nil {
			log.Fatalf("failed to start recorder: %v", err)
		}
		fanout.Add(rec)
		background("recorder", rec.Run)
		log.Printf("recording run %s to %s", rec.RunID(), *recordPath)
	}

	var heading serialmux.SerialMuxInterface
	switch *imuPort {
	case "":
	case "mock":
		heading = serialmux.NewMockSerialMux(ctx, mockYPRLine, 20*time.Millisecond)
	default:
		mux, err := serialmux.Open(serialmux.PortFactory{}, *imuPort, serialmux.PortOptions{BaudRate: *imuBaud})
		if err != nil {
			log.Fatalf("failed to open navX port: %v", err)
		}
		heading = mux
	}

	bot, err := buildSim(simOptions{
		Robot:     rc,
		Tunables:  store,
		Clock:     mono,
		Publisher: fanout,
		Layout:    *layoutPath,
		Camera:    *camera,
		Heading:   heading,
		Limelight: limelight,
		Sticks:    robot.TableSticks(driver),
	})
	if err != nil {
		log.Fatalf("failed to build robot: %v", err)
	}
	bot.install(loop, rc.GetLoopPeriod())

	if heading != nil {
		loop.AddCloser(heading)
		if err := heading.Initialize(); err != nil {
			log.Fatalf("failed to initialize navX: %v", err)
		}
		background("imu monitor", heading.Monitor)
		background("imu reader", func(ctx context.Context) error { return bot.navx.Run(ctx, heading) })
	}

	mux := http.NewServeMux()
	store.AttachAdminRoutes(mux)
	bot.attachAdminRoutes(mux, loop)
	if heading != nil {
		heading.AttachAdminRoutes(mux)
	}
	if archive != nil {
		if err := archive.AttachAdminRoutes(mux); err != nil {
			log.Fatalf("failed to attach archive routes: %v", err)
		}
	}

	server := &http.Server{Addr: *listen, Handler: mux}
	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("failed to shut down server gracefully: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	log.Printf("motioncore %s listening on %s", version.String(), *listen)
	if err := loop.Run(ctx, rc.GetLoopPeriod()); err != nil {
		log.Printf("control loop failed: %v", err)
	}
	wg.Wait()
	if err := loop.Close(); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Printf("graceful shutdown complete")
}
