package opts

import (
	"context"
	"os"
	"path/filepath"

	"github.com/walteh/syncsftp/pkg/config"
	"github.com/walteh/syncsftp/pkg/engine"
	"github.com/walteh/syncsftp/pkg/log"
	"github.com/walteh/syncsftp/pkg/messenger"
	"gitlab.com/tozd/go/errors"
)

// RootOpts contains shared options used by all commands
type RootOpts struct {
	Root       string
	ConfigFile string
	Debug      bool

	// Console is set by the root command before any subcommand runs
	Console *log.Logger
}

// Resolve makes Root absolute, defaulting to the working directory
func (o *RootOpts) Resolve() error {
	if o.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return errors.Errorf("getting working directory: %w", err)
		}
		o.Root = wd
	}
	abs, err := filepath.Abs(o.Root)
	if err != nil {
		return errors.Errorf("resolving root %s: %w", o.Root, err)
	}
	o.Root = abs
	if o.ConfigFile == "" {
		o.ConfigFile = config.DefaultFileName
	}
	return nil
}

// NewEngine builds an engine for the watched root that reports to sink
func (o *RootOpts) NewEngine(sink messenger.Sink) *engine.Engine {
	return engine.New(engine.Options{
		Root:       o.Root,
		ConfigPath: o.ConfigFile,
		Sink:       sink,
	})
}

// Open builds an engine reporting to the console, loads the config and connects
func (o *RootOpts) Open(ctx context.Context) (*engine.Engine, error) {
	e := o.NewEngine(o.Console)
	if err := e.Reload(ctx); err != nil {
		_ = e.Close(ctx)
		return nil, err
	}
	return e, nil
}
