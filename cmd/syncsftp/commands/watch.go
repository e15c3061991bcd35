package commands

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/syncsftp/cmd/syncsftp/opts"
	"github.com/walteh/syncsftp/pkg/engine"
	"github.com/walteh/syncsftp/pkg/messenger"
	"github.com/walteh/syncsftp/pkg/watch"
	"gitlab.com/tozd/go/errors"
)

// jobDepth bounds how many watch events and commands may wait for the scheduler
const jobDepth = 512

// NewWatchCmd creates the watch command
func NewWatchCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the root and sync every change to the remote",
		Long: `Watch loads the config, connects, and uploads or deletes every path that changes
under the root until interrupted. Failed uploads are retried every few seconds.

Commands can be typed on stdin while watching:
  clear-log, reload, reconnect, reupload, make-equal, diff, clear-queue,
  pause, status, hide, show, upload <path>..., help, quit

SIGHUP reloads the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s := newWatchSession(ctx, opts, cmd.OutOrStdout())
			return s.run(ctx, cancel, cmd.InOrStdin())
		},
	}

	return cmd
}

// 👀 watchSession ties the engine, its scheduler, the filesystem watcher and the console together
type watchSession struct {
	opts   *opts.RootOpts
	eng    *engine.Engine
	sched  *engine.Scheduler
	buffer *messenger.Buffer

	mu      sync.Mutex
	watcher *watch.Watcher

	statusOut  io.Writer
	lastStatus string
}

func newWatchSession(ctx context.Context, o *opts.RootOpts, statusOut io.Writer) *watchSession {
	buffer := messenger.NewBuffer()
	buffer.Attach(o.Console)
	return &watchSession{
		opts:      o,
		eng:       o.NewEngine(buffer),
		sched:     engine.NewScheduler(zerolog.Ctx(ctx), jobDepth),
		buffer:    buffer,
		statusOut: statusOut,
	}
}

func (s *watchSession) run(ctx context.Context, cancel context.CancelFunc, stdin io.Reader) error {
	logger := zerolog.Ctx(ctx)

	go func() {
		if err := s.sched.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()
	defer s.stop(ctx)

	s.opts.Console.Header("watching " + s.opts.Root)

	if err := s.sched.Run(ctx, engine.Job{Name: "reload", Run: s.reload}); err != nil {
		logger.Debug().Err(err).Msg("initial load")
	}

	s.eng.StartTickers(ctx, s.sched, s.onStatus)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	lines := readLines(ctx, stdin)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			s.submit(ctx, engine.Job{Name: "reload", Run: s.reload})
		case line, ok := <-lines:
			if !ok {
				// stdin closed, keep watching until interrupted
				lines = nil
				continue
			}
			name, args := parseCommand(line)
			if name == "" {
				continue
			}
			if name == "quit" || name == "exit" {
				cancel()
				return nil
			}
			job, ok := s.command(name, args)
			if !ok {
				s.opts.Console.Errorf("Unknown command %q, type help for a list", name)
				continue
			}
			s.submit(ctx, job)
		}
	}
}

func (s *watchSession) submit(ctx context.Context, job engine.Job) {
	if err := s.sched.Submit(ctx, job); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("job", job.Name).Msg("submitting job")
	}
}

// reload loads the config, makes sure a watcher is running and connects
func (s *watchSession) reload(ctx context.Context) error {
	if err := s.eng.Load(ctx); err != nil {
		return err
	}
	if err := s.ensureWatcher(ctx); err != nil {
		s.opts.Console.Error("Unable to watch " + s.opts.Root + ": " + err.Error())
		return err
	}
	return s.eng.Connect(ctx)
}

// ensureWatcher starts a watcher unless one is already running
func (s *watchSession) ensureWatcher(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil && !s.watcher.IsClosed() {
		return nil
	}

	w, err := watch.New(s.eng.Root(), s.eng.ShouldWatch)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w

	go s.forward(ctx, w)
	return nil
}

// forward turns watcher events into dispatcher jobs
func (s *watchSession) forward(ctx context.Context, w *watch.Watcher) {
	for ev := range w.Events() {
		path := ev.Path
		s.submit(ctx, engine.Job{Name: "change", Run: func(ctx context.Context) error {
			return s.eng.OnChange(ctx, path, nil)
		}})
	}
}

// onStatus prints the status line whenever it changes. Nothing is printed while output is held.
func (s *watchSession) onStatus(st engine.Status) {
	if !s.buffer.Attached() {
		return
	}
	line := st.String()
	if line == s.lastStatus {
		return
	}
	s.lastStatus = line

	printer := pterm.Info
	switch st.State {
	case engine.StateConnected:
		printer = pterm.Success
	case engine.StatePaused:
		printer = pterm.Warning
	case engine.StateDisconnected, engine.StateUnconfigured:
		printer = pterm.Error
	}
	printer.WithPrefix(pterm.Prefix{Text: "STATUS"}).WithWriter(s.statusOut).Println(line)
}

func (s *watchSession) stop(ctx context.Context) {
	s.mu.Lock()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.mu.Unlock()

	if err := s.eng.Close(ctx); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("closing engine")
	}
}

func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("reading stdin")
		}
	}()
	return lines
}
