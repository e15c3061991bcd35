package retry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(name string) Record {
	return Record{Destination: "/remote/" + name, Source: "/local/" + name}
}

func TestQueueOrder(t *testing.T) {
	q := New(-1)
	for _, n := range []string{"A", "B", "C"} {
		assert.Nil(t, q.Push(rec(n)), "unbounded queue should never drop")
	}
	assert.Equal(t, 3, q.Len(), "len should count pushes")

	got := q.Drain()
	require.Len(t, got, 3, "drain should return every record")
	assert.Equal(t, []Record{rec("A"), rec("B"), rec("C")}, got, "drain should keep insertion order")
	assert.Equal(t, 0, q.Len(), "drain should empty the queue")

	q.Push(rec("D"))
	assert.Len(t, got, 3, "snapshot should not see later pushes")
	assert.Equal(t, []Record{rec("D")}, q.Records(), "later push should land in the fresh queue")
}

func TestQueueBound(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		pushes      []string
		wantDropped []string
		wantLeft    []string
	}{
		{
			name:     "under_limit",
			limit:    3,
			pushes:   []string{"A", "B"},
			wantLeft: []string{"A", "B"},
		},
		{
			name:        "drop_oldest",
			limit:       2,
			pushes:      []string{"A", "B", "C", "D"},
			wantDropped: []string{"A", "B"},
			wantLeft:    []string{"C", "D"},
		},
		{
			name:        "zero_keeps_nothing",
			limit:       0,
			pushes:      []string{"A"},
			wantDropped: []string{"A"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(tt.limit)
			var dropped []string
			for _, n := range tt.pushes {
				if d := q.Push(rec(n)); d != nil {
					dropped = append(dropped, d.Source[len("/local/"):])
				}
			}
			assert.Equal(t, tt.wantDropped, dropped, "dropped records should match")

			var left []string
			for _, r := range q.Records() {
				left = append(left, r.Source[len("/local/"):])
			}
			assert.Equal(t, tt.wantLeft, left, "remaining records should match")
		})
	}
}

func TestQueueClearAndSetLimit(t *testing.T) {
	q := New(-1)
	for i := 0; i < 5; i++ {
		q.Push(rec(fmt.Sprint(i)))
	}

	dropped := q.SetLimit(2)
	assert.Len(t, dropped, 3, "shrinking should drop the oldest records")
	assert.Equal(t, []Record{rec("3"), rec("4")}, q.Records(), "newest records should remain")

	assert.Equal(t, 2, q.Clear(), "clear should report the count")
	assert.Equal(t, 0, q.Len(), "clear should empty the queue")
	assert.Nil(t, q.SetLimit(-1), "growing should drop nothing")
}

func TestQueueConcurrentPush(t *testing.T) {
	q := New(-1)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(rec(fmt.Sprint(i)))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len(), "every concurrent push should be kept")
}
