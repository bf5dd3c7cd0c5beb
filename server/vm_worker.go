package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chazu/ember/vm"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("server: worker stopped")

// vmRequest represents a unit of work to be executed on the VM goroutine.
type vmRequest struct {
	fn   func(*vm.VM) any
	done chan vmResult
}

// vmResult holds the return value from a VM operation.
type vmResult struct {
	value any
	err   error
}

// Worker serializes all compiler and VM access through a single goroutine.
// The VM is not safe for concurrent use and LSP requests arrive on
// arbitrary goroutines.
type Worker struct {
	id       uuid.UUID
	vm       *vm.VM
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(v *vm.VM) *Worker {
	w := &Worker{
		id:       v.ID(),
		vm:       v,
		requests: make(chan vmRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// ID returns the ID of the VM the worker owns. It tags the worker's log
// lines and the runtime errors its VM raises.
func (w *Worker) ID() uuid.UUID {
	return w.id
}

func (w *Worker) loop() {
	log.Debugf("worker %s: started", w.id)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			log.Debugf("worker %s: stopped", w.id)
			return
		}
	}
}

// execute runs fn on the VM, turning a panic into an error.
func (w *Worker) execute(fn func(*vm.VM) any) (result vmResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker %s: recovered from panic: %v", w.id, r)
			result.err = fmt.Errorf("server: %v", r)
		}
	}()
	result.value = fn(w.vm)
	return result
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes.
func (w *Worker) Do(fn func(*vm.VM) any) (any, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
