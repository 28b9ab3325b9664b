/*
Runs the testbed scene through the frame batching core on the simulated
device until interrupted or until the configured frame count is reached.
*/
package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/tessera/engine"
	"github.com/spaghettifunk/tessera/engine/config"
	"github.com/spaghettifunk/tessera/engine/core"
	"github.com/spaghettifunk/tessera/engine/renderer/sim"
	"github.com/spaghettifunk/tessera/testbed"
)

func main() {
	configPath := flag.String("config", "tessera.toml", "path to the engine configuration")
	frames := flag.Uint64("frames", 0, "frames to render before exiting, overrides the config when set")
	columns := flag.Uint("columns", 32, "cubes per grid row")
	rows := flag.Uint("rows", 32, "grid rows")
	seed := flag.Uint64("seed", 1, "seed for the scene's materials")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogWarn("config %s not found, using defaults", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		core.LogFatal(err.Error())
	}
	if *frames > 0 {
		cfg.Application.Frames = *frames
	}

	device, err := sim.NewDevice(sim.DeviceConfig{Latency: cfg.Latency()})
	if err != nil {
		core.LogFatal(err.Error())
	}

	tb := testbed.NewTestGame(uint32(*columns), uint32(*rows), *seed)

	e, err := engine.New(tb.Game, cfg, device)
	if err != nil {
		core.LogFatal(err.Error())
	}

	if err := e.Initialize(); err != nil {
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// start shutdown goroutine
	go func() {
		// capture sigterm and other system call here
		<-sigCh
		e.Stop()
	}()

	// run engine
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if err := device.Shutdown(); err != nil {
		core.LogError(err.Error())
	}
	if runErr != nil {
		core.LogFatal(runErr.Error())
	}
	core.LogInfo("rendered %d frames", e.FrameNumber())
}
