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

// Package messenger defines the one-way channel the engine uses to talk to whatever
// user interface is attached to it.
package messenger

import (
	"fmt"
	"sync"
	"time"
)

// 🏷️ Kind classifies a message for display
type Kind string

const (
	KindInfo    Kind = "info"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
	KindClear   Kind = "clear"
)

// 💬 Message is a single line sent to the UI
type Message struct {
	Kind Kind   `json:"type"`
	Text string `json:"value"`
}

// 📮 Sink receives messages. The engine never reads from it.
type Sink interface {
	Post(msg Message)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(msg Message)

func (f SinkFunc) Post(msg Message) { f(msg) }

// Discard drops every message
var Discard Sink = SinkFunc(func(Message) {})

// 📣 Messenger wraps a Sink with the helpers the engine uses
type Messenger struct {
	sink Sink
	now  func() time.Time
}

// 🏭 New creates a messenger writing to sink. A nil sink discards.
func New(sink Sink) *Messenger {
	if sink == nil {
		sink = Discard
	}
	return &Messenger{sink: sink, now: time.Now}
}

func (m *Messenger) Info(text string)    { m.sink.Post(Message{Kind: KindInfo, Text: text}) }
func (m *Messenger) Error(text string)   { m.sink.Post(Message{Kind: KindError, Text: text}) }
func (m *Messenger) Success(text string) { m.sink.Post(Message{Kind: KindSuccess, Text: text}) }
func (m *Messenger) Clear()              { m.sink.Post(Message{Kind: KindClear}) }

func (m *Messenger) Infof(format string, args ...any)  { m.Info(fmt.Sprintf(format, args...)) }
func (m *Messenger) Errorf(format string, args ...any) { m.Error(fmt.Sprintf(format, args...)) }
func (m *Messenger) Successf(format string, args ...any) {
	m.Success(fmt.Sprintf(format, args...))
}

// ⏱️ Stamp returns the "[H:MM]: " prefix used on transfer lines
func (m *Messenger) Stamp() string {
	return TimeString(m.now())
}

// TimeString formats t as "[H:MM]: "
func TimeString(t time.Time) string {
	return fmt.Sprintf("[%d:%02d]: ", t.Hour(), t.Minute())
}

// 📦 Buffer holds messages until a viewer is attached, then forwards everything.
type Buffer struct {
	mu      sync.Mutex
	pending []Message
	viewer  Sink
}

// NewBuffer returns an empty buffer with no viewer
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Post forwards to the viewer if one is attached, flushing anything queued first.
func (b *Buffer) Post(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.viewer == nil {
		b.pending = append(b.pending, msg)
		return
	}
	b.flushLocked()
	b.viewer.Post(msg)
}

// Attach sets the viewer and flushes the backlog to it. A nil viewer detaches.
func (b *Buffer) Attach(viewer Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.viewer = viewer
	if viewer != nil {
		b.flushLocked()
	}
}

// Attached reports whether a viewer is receiving messages
func (b *Buffer) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewer != nil
}

// Pending returns how many messages are waiting for a viewer
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Messages returns a copy of the queued messages
func (b *Buffer) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.pending))
	copy(out, b.pending)
	return out
}

func (b *Buffer) flushLocked() {
	for _, m := range b.pending {
		b.viewer.Post(m)
	}
	b.pending = nil
}

// 🧾 Recorder keeps every message it receives. Useful for one-shot commands and tests.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Post(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Messages returns a copy of everything recorded
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// OfKind returns the text of every recorded message with the given kind
func (r *Recorder) OfKind(k Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.Kind == k {
			out = append(out, m.Text)
		}
	}
	return out
}
