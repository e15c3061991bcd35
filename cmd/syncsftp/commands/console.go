package commands

import (
	"context"
	"sort"
	"strings"

	"github.com/walteh/syncsftp/pkg/engine"
)

// parseCommand splits a console line into a command name and its arguments
func parseCommand(line string) (string, []string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

// consoleCommands lists what can be typed while watching
var consoleCommands = map[string]string{
	"clear-log":   "clear the log and show the watched directory",
	"reload":      "load the config again and reconnect",
	"reconnect":   "open a fresh connection",
	"reupload":    "retry every queued upload now",
	"make-equal":  "upload and delete until the remote matches",
	"diff":        "list what make-equal would do",
	"clear-queue": "forget every queued upload",
	"pause":       "pause or resume syncing",
	"status":      "show connection state and queued uploads",
	"hide":        "hold messages until show",
	"show":        "print held messages and resume output",
	"upload":      "upload the given paths",
	"help":        "list commands",
	"quit":        "stop watching",
}

// command maps a console command to the job that runs it
func (s *watchSession) command(name string, args []string) (engine.Job, bool) {
	var run func(ctx context.Context) error

	switch name {
	case "clear-log":
		run = func(ctx context.Context) error {
			s.eng.ClearLog()
			return nil
		}
	case "reload":
		run = s.reload
	case "reconnect":
		run = s.eng.Reconnect
	case "reupload":
		run = s.eng.ReuploadFailed
	case "make-equal":
		run = func(ctx context.Context) error {
			_, err := s.eng.MakeEqual(ctx)
			return err
		}
	case "diff":
		run = func(ctx context.Context) error {
			_, err := s.eng.DetectDifferences(ctx)
			return err
		}
	case "clear-queue":
		run = func(ctx context.Context) error {
			s.eng.ClearRetryQueue(ctx)
			return nil
		}
	case "pause":
		run = func(ctx context.Context) error {
			s.eng.TogglePause(ctx)
			return nil
		}
	case "status":
		run = func(ctx context.Context) error {
			s.opts.Console.Info(s.eng.Status().String())
			for _, rec := range s.eng.PendingRecords() {
				s.opts.Console.Info("  queued: " + rec.Destination)
			}
			return nil
		}
	case "hide":
		run = func(ctx context.Context) error {
			s.opts.Console.Info("Output held, type show to see it")
			s.buffer.Attach(nil)
			return nil
		}
	case "show":
		run = func(ctx context.Context) error {
			s.buffer.Attach(s.opts.Console)
			return nil
		}
	case "upload":
		if len(args) == 0 {
			return engine.Job{}, false
		}
		paths := append([]string(nil), args...)
		run = func(ctx context.Context) error {
			return s.eng.UploadSelection(ctx, paths)
		}
	case "help":
		run = func(ctx context.Context) error {
			names := make([]string, 0, len(consoleCommands))
			for n := range consoleCommands {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				s.opts.Console.Infof("%-12s %s", n, consoleCommands[n])
			}
			return nil
		}
	default:
		return engine.Job{}, false
	}

	return engine.Job{Name: name, Run: run}, true
}
