package resource

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// pipelineTask is the handle stored in a Creating state.
type pipelineTask struct {
	done     chan struct{}
	pipeline Pipeline
	err      error
}

func newPipelineTask() *pipelineTask {
	return &pipelineTask{done: make(chan struct{})}
}

// run never leaves done open: a panicking create becomes the task's error.
func (t *pipelineTask) run(create func() (Pipeline, error)) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.pipeline, t.err = nil, &PipelineCacheError{Kind: ErrorKindCreatePipeline, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	t.pipeline, t.err = create()
}

func (t *pipelineTask) ready() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *pipelineTask) wait() {
	<-t.done
}

func (t *pipelineTask) state() CachedPipelineState {
	if t.err != nil {
		return CachedPipelineState{Status: PipelineErr, Err: t.err}
	}
	return CachedPipelineState{Status: PipelineOk, pipeline: t.pipeline}
}

// pipelineSpawner runs device pipeline creation either inline or on a pool of
// reusable workers.
type pipelineSpawner struct {
	inline   bool
	pool     worker.DynamicWorkerPool
	mu       sync.Mutex
	inFlight sync.WaitGroup
	nextId   int
}

func newPipelineSpawner(synchronous bool, workers int, queueSize int) *pipelineSpawner {
	s := &pipelineSpawner{inline: synchronous || !asyncPipelineCompilation}
	if !s.inline {
		s.pool = worker.NewDynamicWorkerPool(workers, queueSize, 2*time.Second)
	}
	return s
}

func (s *pipelineSpawner) spawn(create func() (Pipeline, error)) *pipelineTask {
	task := newPipelineTask()

	s.mu.Lock()
	if s.inline {
		s.mu.Unlock()
		task.run(create)
		return task
	}
	id := s.nextId
	s.nextId++
	s.inFlight.Add(1)
	s.mu.Unlock()

	s.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			defer s.inFlight.Done()
			task.run(create)
			return nil, task.err
		},
	})
	return task
}

func (s *pipelineSpawner) isInline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inline
}

// close switches to inline creation before waiting, so nothing is submitted
// to the pool once the wait starts.
func (s *pipelineSpawner) close() {
	s.mu.Lock()
	s.inline = true
	s.mu.Unlock()
	s.inFlight.Wait()
}
