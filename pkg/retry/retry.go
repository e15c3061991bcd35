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

package retry

import (
	"sync"

	"github.com/rs/zerolog"
)

// 📦 Record is one upload waiting to be attempted again
type Record struct {
	Destination string
	Source      string
	IsDirectory bool
}

func (r Record) MarshalZerologObject(e *zerolog.Event) {
	e.Str("destination", r.Destination).Str("source", r.Source).Bool("dir", r.IsDirectory)
}

// 🔁 Queue holds failed uploads in the order they failed.
//
// The queue is bounded: once it holds limit records, pushing drops the oldest one. A negative
// limit disables the bound.
type Queue struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

// 🏭 New creates an empty queue holding at most limit records
func New(limit int) *Queue {
	return &Queue{limit: limit}
}

// Push appends a record. When the queue was full, the evicted record is returned.
func (q *Queue) Push(r Record) (dropped *Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit == 0 {
		return &r
	}
	if q.limit > 0 && len(q.records) >= q.limit {
		old := q.records[0]
		q.records = q.records[1:]
		dropped = &old
	}
	q.records = append(q.records, r)
	return dropped
}

// 📤 Drain snapshots and empties the queue in one step. Records pushed afterwards land in the
// fresh queue, not the snapshot.
func (q *Queue) Drain() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.records
	q.records = nil
	return out
}

// Len returns the number of pending records
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Clear drops every pending record and returns how many there were
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.records)
	q.records = nil
	return n
}

// Records returns a copy of the pending records
func (q *Queue) Records() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Record, len(q.records))
	copy(out, q.records)
	return out
}

// SetLimit changes the bound, trimming the oldest records if needed
func (q *Queue) SetLimit(limit int) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limit = limit
	if limit < 0 || len(q.records) <= limit {
		return nil
	}
	cut := len(q.records) - limit
	dropped := append([]Record(nil), q.records[:cut]...)
	q.records = q.records[cut:]
	return dropped
}
