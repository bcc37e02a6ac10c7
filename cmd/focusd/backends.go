package main

import (
	"io"

	"github.com/teslashibe/go-focus/internal/config"
	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/detection"
	"github.com/teslashibe/go-focus/pkg/device"
	"github.com/teslashibe/go-focus/pkg/faces"
	"github.com/teslashibe/go-focus/pkg/landmarks"
)

// backends are the detectors shared by every session. Missing models leave
// the matching capability unavailable and the engine degrades around it.
type backends struct {
	landmarks faces.LandmarkSource
	cascades  faces.CoarseDetector
	objects   device.ObjectDetector

	closers []io.Closer
}

func openBackends(cfg *config.Service) *backends {
	b := &backends{
		landmarks: faces.NoLandmarks{},
		cascades:  faces.NoCascades{},
		objects:   device.NoDetector{},
	}
	l := log.Component("detection")

	if cfg.LandmarkURL != "" {
		b.landmarks = landmarks.New(cfg.Landmarks)
		l.Info("using landmark sidecar", "url", cfg.Landmarks.URL)
	} else if src, err := detection.NewMeshSource(cfg.Detection.Face, cfg.Detection.Mesh); err != nil {
		l.Warn("face mesh unavailable, using cascade fallback", "error", err)
	} else {
		b.landmarks = src
		b.closers = append(b.closers, src)
		l.Info("face mesh loaded", "model", cfg.Detection.Mesh.ModelPath)
	}

	if cc, err := detection.NewCascades(cfg.Detection); err != nil {
		l.Warn("haar cascades unavailable", "error", err)
	} else {
		b.cascades = cc
		b.closers = append(b.closers, cc)
	}

	if od, err := detection.NewObjectDetector(cfg.Detection.Object); err != nil {
		l.Warn("device detection disabled", "error", err)
	} else {
		b.objects = od
		b.closers = append(b.closers, od)
		l.Info("object detector loaded", "model", cfg.Detection.Object.ModelPath, "classes", len(od.Classes()))
	}
	return b
}

func (b *backends) Close() {
	for _, c := range b.closers {
		c.Close()
	}
}
