// focusd serves per-frame focus analysis over HTTP, WebSocket and an
// annotated MJPEG webcam stream.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teslashibe/go-focus/internal/config"
	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/camera"
	"github.com/teslashibe/go-focus/pkg/debug"
	"github.com/teslashibe/go-focus/pkg/events"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/frame"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/metrics"
	"github.com/teslashibe/go-focus/pkg/overlay"
	"github.com/teslashibe/go-focus/pkg/session"
	"github.com/teslashibe/go-focus/pkg/web"
)

func main() {
	envFile := flag.String("env", ".env", "Path to a .env file")
	flag.BoolVar(&debug.Enabled, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&debug.Detections, "debug-detections", false, "Log every detector call (very verbose)")
	noWebcam := flag.Bool("no-webcam", false, "Disable the /webcam/stream endpoint")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Init("info")
		log.Error("env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Init("info")
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if *noWebcam {
		cfg.WebcamEnabled = false
	}
	log.Init(debug.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Service) error {
	b := openBackends(cfg)
	defer b.Close()

	m := metrics.New(true)
	results := hub.New("results", log.Component("hub"))
	results.OnCount(m.SetStreamClients)

	opts := []session.Option{
		session.WithIdleTTL(cfg.SessionTTL),
		session.WithLogger(log.Component("session")),
		session.WithObserver(m),
		session.WithObserver(results),
		session.WithOnRemove(m.ForgetSession),
	}

	if cfg.RedisURL != "" {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("alert events disabled", "error", err)
		} else {
			defer client.Close()
			pub := events.NewPublisher(client,
				events.WithPrefix(cfg.EventPrefix),
				events.WithLogger(log.Component("events")))
			opts = append(opts, session.WithObserver(pub), session.WithOnRemove(pub.Forget))
			log.Info("publishing alert events", "prefix", cfg.EventPrefix)
		}
	}

	engineLog := log.Component("focus")
	sessions := session.NewManager(func(string) *focus.Engine {
		return focus.New(cfg.Focus, b.landmarks, b.cascades, b.objects, focus.WithLogger(engineLog))
	}, opts...)
	go sessions.Run(ctx, time.Minute)

	cameras := camera.NewManager(cfg.Camera)
	var webcam web.Webcam
	if cfg.WebcamEnabled {
		awayAfter := cfg.Focus.AwayAlertAfter.Seconds()
		webcam = camera.NewStreamer(cameras, func(f *frame.Frame) (focus.Result, focus.Overlay) {
			start := time.Now()
			res, _ := sessions.Analyze(session.DefaultID, f)
			m.ObserveDuration("webcam", time.Since(start))
			ov, _ := sessions.Default().Overlay()
			return res, ov
		}, overlay.New(awayAfter), log.Component("camera"))
	}

	srv := web.NewServer(web.Options{
		Addr:        cfg.Addr,
		CORSOrigins: cfg.CORSOrigins,
		Sessions:    sessions,
		Results:     results,
		Metrics:     m,
		Cameras:     cameras,
		Webcam:      webcam,
		Logger:      log.Component("web"),
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return srv.Shutdown()
	case err := <-errc:
		return err
	}
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
