// Package coordinator runs independent tasks on a bounded worker pool and
// returns their outcomes in submission order.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/local/printorder/internal/metrics"
)

const (
	DefaultWorkers     = 4
	DefaultTaskTimeout = 30 * time.Second
)

// ErrTimeout marks a task abandoned after its timeout.
var ErrTimeout = errors.New("task timed out")

// Pool bounds concurrency and per-task run time. One worker runs the tasks
// sequentially in submission order.
type Pool struct {
	Workers     int
	TaskTimeout time.Duration
}

// NewPool sizes a pool; parallel=false forces a single worker.
func NewPool(workers int, timeout time.Duration, parallel bool) Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if !parallel {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return Pool{Workers: workers, TaskTimeout: timeout}
}

// Sequential reports whether the pool runs one task at a time.
func (p Pool) Sequential() bool { return p.Workers <= 1 }

// Task is one unit of work.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Outcome is the result of one task. Err is ErrTimeout for abandoned tasks.
type Outcome[T any] struct {
	Name     string
	Value    T
	Err      error
	Duration time.Duration
}

// OK reports whether the task produced a value.
func (o Outcome[T]) OK() bool { return o.Err == nil }

// Run executes tasks on p and returns one outcome per task, in the order the
// tasks were given. A failed or timed-out task never stops the others; a
// task still running at its timeout is abandoned and its late result dropped.
func Run[T any](ctx context.Context, p Pool, tasks []Task[T]) []Outcome[T] {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	timeout := p.TaskTimeout
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}

	out := make([]Outcome[T], len(tasks))
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for i, task := range tasks {
		out[i].Name = task.Name
		if err := sem.Acquire(ctx, 1); err != nil {
			out[i].Err = err
			continue
		}
		wg.Add(1)
		go func(i int, task Task[T]) {
			defer wg.Done()
			defer sem.Release(1)
			out[i] = runOne(ctx, task, timeout)
		}(i, task)
	}
	wg.Wait()
	return out
}

type result[T any] struct {
	value T
	err   error
}

func runOne[T any](ctx context.Context, task Task[T], timeout time.Duration) Outcome[T] {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				ch <- result[T]{value: zero, err: fmt.Errorf("task %s panicked: %v", task.Name, r)}
			}
		}()
		v, err := task.Run(tctx)
		ch <- result[T]{value: v, err: err}
	}()

	o := Outcome[T]{Name: task.Name}
	select {
	case r := <-ch:
		o.Value, o.Err = r.value, r.err
	case <-tctx.Done():
		o.Err = ErrTimeout
		if ctx.Err() != nil {
			o.Err = ctx.Err()
		}
	}
	o.Duration = time.Since(start)

	switch {
	case o.Err == nil:
		metrics.IncTask("ok")
	case errors.Is(o.Err, ErrTimeout):
		metrics.IncTask("timeout")
		log.Warn().Str("task", task.Name).Dur("timeout", timeout).Msg("task timed out; result discarded")
	default:
		metrics.IncTask("error")
		log.Warn().Err(o.Err).Str("task", task.Name).Msg("task failed")
	}
	return o
}
