// focus-probe streams image files or webcam frames to a running focusd and
// prints each verdict.
//
//	focus-probe -url ws://localhost:8000/analyze face1.jpg face2.png
//	focus-probe -webcam -count 100 -interval 200ms
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-focus/pkg/camera"
	"github.com/teslashibe/go-focus/pkg/client"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/overlay"
)

type options struct {
	url      string
	session  string
	raw      bool
	webcam   bool
	device   int
	count    int
	interval time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.url, "url", client.DefaultURL, "Analyze WebSocket URL")
	flag.StringVar(&o.session, "session", "", "Session id (default session when empty)")
	flag.BoolVar(&o.raw, "raw", false, "Send frames as binary messages instead of base64 JSON")
	flag.BoolVar(&o.webcam, "webcam", false, "Capture frames from the local webcam")
	flag.IntVar(&o.device, "device", 0, "Webcam device index")
	flag.IntVar(&o.count, "count", 0, "Frames to send from the webcam (0 = until interrupted)")
	flag.DurationVar(&o.interval, "interval", 100*time.Millisecond, "Delay between webcam frames")
	flag.Parse()

	if !o.webcam && flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: focus-probe [flags] image...  |  focus-probe -webcam [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var opts []client.Option
	if o.session != "" {
		opts = append(opts, client.WithSession(o.session))
	}
	c, err := client.Dial(ctx, o.url, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	if o.webcam {
		err = probeWebcam(ctx, c, o)
	} else {
		err = probeFiles(ctx, c, o, flag.Args())
	}
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func send(c *client.Client, o options, data []byte) (focus.Result, error) {
	if o.raw {
		return c.AnalyzeRaw(data)
	}
	return c.Analyze(data)
}

func probeFiles(ctx context.Context, c *client.Client, o options, paths []string) error {
	for _, p := range paths {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		res, err := send(c, o, data)
		if err != nil {
			fmt.Printf("%-24s ⚠️  %v\n", filepath.Base(p), err)
			continue
		}
		report(filepath.Base(p), res)
	}
	return nil
}

func probeWebcam(ctx context.Context, c *client.Client, o options) error {
	cfg := camera.DefaultConfig()
	cfg.Device = o.device
	src, err := camera.Open(cfg, runtime.GOOS, nil)
	if err != nil {
		return err
	}
	defer src.Close()

	img := gocv.NewMat()
	defer img.Close()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for n := 1; o.count == 0 || n <= o.count; n++ {
		if err := src.Read(&img); err != nil {
			return err
		}
		data, err := overlay.Encode(img, cfg.Quality)
		if err != nil {
			return err
		}
		res, err := send(c, o, data)
		if err != nil {
			return err
		}
		report(fmt.Sprintf("frame %d", n), res)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func report(name string, res focus.Result) {
	alerts := "-"
	if len(res.Alerts) > 0 {
		alerts = strings.Join(res.Alerts, ",")
	}
	fmt.Printf("%-24s %6.2f%%  %-8s away=%5.2fs  faces=%d eyes=%d  %s  [%s]\n",
		name, res.FocusScore, res.State, res.AwayTimer, res.FacesDetected, res.EyesDetected, res.Status, alerts)
}
