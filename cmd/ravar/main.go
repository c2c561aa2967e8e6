package main

import (
	"context"
	"flag"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/milk9111/ravar/config"
	"github.com/milk9111/ravar/content"
	"github.com/milk9111/ravar/input"
	"github.com/milk9111/ravar/inspect"
	"github.com/milk9111/ravar/logger"
	"github.com/milk9111/ravar/scene"
	"github.com/milk9111/ravar/session"
)

func main() {
	debug := flag.Bool("debug", false, "strict mode: panic on chains started while in flight")
	baseMonitor := flag.Bool("m", false, "use base monitor instead of primary (for multi-monitor setups)")
	inspectAddr := flag.String("inspect", "", "serve the inspector on this address, e.g. :8089")
	skipMenu := flag.Bool("skip-menu", false, "start directly in the world")
	watch := flag.Bool("watch", true, "reload content/ files when they change")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "text", os.Stderr).WithError(err).Fatal("load config")
	}
	if *debug {
		cfg.Debug = true
	}
	if *inspectAddr != "" {
		cfg.Inspect.Addr = *inspectAddr
	}
	if *skipMenu {
		cfg.StartInMenu = false
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	scenes, err := scene.CheckAll()
	if err != nil {
		log.WithError(err).Fatal("invalid scene content")
	}
	log.WithField("scenes", len(scenes)).Debug("scene manifests checked")

	var watcher *content.Watcher
	if *watch {
		if _, err := os.Stat(content.Dir); err == nil {
			watcher, err = content.WatchDir()
			if err != nil {
				log.WithError(err).Warn("content watcher unavailable")
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inspector *inspect.Server
	if cfg.Inspect.Addr != "" {
		inspector = inspect.NewServer(cfg.Inspect.Addr, log)
		go func() {
			if err := inspector.Run(ctx); err != nil {
				log.WithError(err).Error("inspector stopped")
			}
		}()
	}

	presenter := newPresenter(log)
	s := session.New(session.Options{
		Config:    cfg,
		Input:     input.NewEbiten(),
		Watcher:   watcher,
		Inspector: inspector,
		Presenter: presenter,
		Log:       log,
	})
	defer s.Close()

	if *baseMonitor {
		ebiten.SetMonitor(ebiten.AppendMonitors(nil)[0])
	}
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(baseWidth, baseHeight)
	ebiten.SetWindowTitle("ravar")
	ebiten.SetTPS(cfg.FrameRate)

	if err := ebiten.RunGame(NewGame(s, presenter)); err != nil {
		log.WithError(err).Fatal("game stopped")
	}
}
