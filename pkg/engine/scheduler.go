// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/syncsftp/pkg/config"
	"gitlab.com/tozd/go/errors"
)

// ErrSchedulerStopped is returned for jobs submitted after the scheduler loop exited
var ErrSchedulerStopped = errors.Base("scheduler stopped")

// 🧩 Job is one unit of engine work
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type request struct {
	job  Job
	done chan error
}

// 🏃 Scheduler runs jobs one at a time on a single goroutine. Watch events, commands and
// periodic ticks all go through it, so engine operations never overlap.
type Scheduler struct {
	logger  *zerolog.Logger
	jobs    chan request
	stopped chan struct{}
}

// 🏗️ NewScheduler creates a scheduler that buffers up to depth jobs
func NewScheduler(logger *zerolog.Logger, depth int) *Scheduler {
	if depth <= 0 {
		depth = 1
	}
	return &Scheduler{
		logger:  logger,
		jobs:    make(chan request, depth),
		stopped: make(chan struct{}),
	}
}

// 🔄 Start runs jobs until ctx is done
func (s *Scheduler) Start(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.jobs:
			err := s.execute(ctx, req.job)
			if req.done != nil {
				req.done <- err
			}
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job %s panicked: %v", job.Name, r)
		}
		if err != nil {
			s.logger.Debug().Err(err).Str("job", job.Name).Msg("job finished with error")
		}
	}()
	return job.Run(ctx)
}

// Submit queues a job without waiting for it to run
func (s *Scheduler) Submit(ctx context.Context, job Job) error {
	return s.enqueue(ctx, request{job: job})
}

// ⚡ Run queues a job and waits for its result
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	req := request{job: job, done: make(chan error, 1)}
	if err := s.enqueue(ctx, req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return errors.Errorf("job %s cancelled: %w", job.Name, ctx.Err())
	case <-s.stopped:
		select {
		case err := <-req.done:
			return err
		default:
			return ErrSchedulerStopped
		}
	case err := <-req.done:
		return err
	}
}

func (s *Scheduler) enqueue(ctx context.Context, req request) error {
	select {
	case <-s.stopped:
		return ErrSchedulerStopped
	default:
	}
	select {
	case <-ctx.Done():
		return errors.Errorf("job %s cancelled: %w", req.job.Name, ctx.Err())
	case <-s.stopped:
		return ErrSchedulerStopped
	case s.jobs <- req:
		return nil
	}
}

// ⏰ Every submits fn on a fixed cadence until ctx is done. The interval is read again before
// each wait. A tick is skipped while the previous one is still queued or running.
func (s *Scheduler) Every(ctx context.Context, name string, interval func() time.Duration, fn func(ctx context.Context) error) {
	var busy atomic.Bool
	go func() {
		t := time.NewTimer(interval())
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopped:
				return
			case <-t.C:
			}
			if busy.CompareAndSwap(false, true) {
				job := Job{Name: name, Run: func(ctx context.Context) error {
					defer busy.Store(false)
					return fn(ctx)
				}}
				if err := s.Submit(ctx, job); err != nil {
					busy.Store(false)
				}
			}
			t.Reset(interval())
		}
	}()
}

// StatusInterval is the cadence of the status refresh
const StatusInterval = time.Second

// 🕰️ StartTickers registers the retry tick and the status refresh on s. onStatus may be nil.
func (e *Engine) StartTickers(ctx context.Context, s *Scheduler, onStatus func(Status)) {
	s.Every(ctx, "retry", e.retryInterval, func(ctx context.Context) error {
		e.RetryTick(ctx)
		return nil
	})
	if onStatus == nil {
		return
	}
	s.Every(ctx, "status", func() time.Duration { return StatusInterval }, func(ctx context.Context) error {
		onStatus(e.Status())
		return nil
	})
}

func (e *Engine) retryInterval() time.Duration {
	cfg := e.Config()
	if cfg == nil || cfg.RetryInterval <= 0 {
		return config.DefaultRetryInterval
	}
	return cfg.RetryInterval
}
