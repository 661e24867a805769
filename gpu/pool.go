package gpu

import (
	"fmt"
	"sync"
)

// parallelThreshold is the minimum workgroup count to fan out to workers.
// Below this, running inline on the queue goroutine is faster.
const parallelThreshold = 4

// workChunk represents a range of workgroups for a worker to process.
type workChunk struct {
	start, end int
	fn         func(start, end int)
}

// workerPool runs workgroups of one dispatch at a time on persistent goroutines.
// Only the queue goroutine submits work, so completions can be counted
// without tagging them.
type workerPool struct {
	numWorkers int

	workChan chan workChunk // sends work to workers
	doneChan chan any       // workers signal completion (nil or a recovered panic)
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool
}

func newWorkerPool(numWorkers int) *workerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &workerPool{numWorkers: numWorkers}
}

// start launches the worker goroutines.
func (p *workerPool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan any, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// stop signals all workers to exit and waits for them.
func (p *workerPool) stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *workerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			p.doneChan <- runChunk(chunk)
		}
	}
}

// runChunk executes a chunk and converts a panic into a value.
func runChunk(chunk workChunk) (fault any) {
	defer func() {
		if r := recover(); r != nil {
			fault = r
		}
	}()
	chunk.fn(chunk.start, chunk.end)
	return nil
}

// run splits [0, n) into contiguous chunks, executes them and waits for all
// of them. A panic in any chunk is re-raised on the caller after every chunk
// has finished.
func (p *workerPool) run(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if n < parallelThreshold || p.numWorkers == 1 || !p.running {
		fn(0, n)
		return
	}

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers

	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		dispatched++
	}

	var fault any
	for i := 0; i < dispatched; i++ {
		if r := <-p.doneChan; r != nil && fault == nil {
			fault = r
		}
	}
	if fault != nil {
		panic(fmt.Sprint(fault))
	}
}
