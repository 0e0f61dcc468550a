// Package pipeline validates, de-duplicates and exports scraped products.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/aluiziolira/go-scrape-market/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers.
var drainTimeout = 30 * time.Second

// OutputWriter receives validated product batches.
type OutputWriter interface {
	Write(products []*models.Product) error
	Close() error
	Validate() error
}

// Options tunes batching and de-duplication.
type Options struct {
	BatchSize int
	// SeenCapacity bounds the de-dup index; the oldest keys fall out first.
	SeenCapacity int
}

// DefaultOptions returns the batch size and de-dup capacity used for exports.
func DefaultOptions() Options {
	return Options{BatchSize: 64, SeenCapacity: 100_000}
}

// Stats counts what happened to the products handed to Process.
type Stats struct {
	Written    int64
	Invalid    int64
	Duplicates int64
}

// Pipeline fans products out to workers that validate, de-duplicate and
// write them in batches.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	in        chan *models.Product
	batchSize int
	seen      *lru.Cache[string, struct{}]
	workers   sync.WaitGroup

	// sendMu is read-held by Process and write-held while in is closed.
	sendMu sync.RWMutex
	closed bool

	errMu    sync.Mutex
	err      error
	failed   chan struct{}
	failOnce sync.Once

	written    atomic.Int64
	invalid    atomic.Int64
	duplicates atomic.Int64
}

// NewPipeline builds a pipeline; call Start before Process.
func NewPipeline(ctx context.Context, writer OutputWriter, opts Options) *Pipeline {
	defaults := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaults.BatchSize
	}
	if opts.SeenCapacity <= 0 {
		opts.SeenCapacity = defaults.SeenCapacity
	}
	seen, _ := lru.New[string, struct{}](opts.SeenCapacity)

	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		in:        make(chan *models.Product, 512),
		batchSize: opts.BatchSize,
		seen:      seen,
		failed:    make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	for range max(workers, 1) {
		p.workers.Add(1)
		go p.work()
	}
}

// Process hands products to the workers. Nil entries are ignored.
func (p *Pipeline) Process(products ...*models.Product) error {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	if p.closed {
		return ErrPipelineClosed
	}
	for _, product := range products {
		if product == nil {
			continue
		}
		select {
		case p.in <- product:
		case <-p.failed:
			return p.Err()
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}
	return nil
}

// Close stops accepting products and waits for the workers to flush.
func (p *Pipeline) Close() error {
	p.sendMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.in)
	}
	p.sendMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return p.Err()
	case <-time.After(drainTimeout):
		return ErrPipelineCloseTimeout
	}
}

// Err returns the first write error.
func (p *Pipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Stats returns the running counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Written:    p.written.Load(),
		Invalid:    p.invalid.Load(),
		Duplicates: p.duplicates.Load(),
	}
}

func (p *Pipeline) work() {
	defer p.workers.Done()

	batch := make([]*models.Product, 0, p.batchSize)
	flush := func() bool {
		if len(batch) == 0 {
			return true
		}
		if err := p.writer.Write(batch); err != nil {
			p.fail(fmt.Errorf("write batch: %w", err))
			return false
		}
		p.written.Add(int64(len(batch)))
		batch = batch[:0]
		return true
	}

	for product := range p.in {
		if !p.accept(product) {
			continue
		}
		batch = append(batch, product)
		if len(batch) >= p.batchSize && !flush() {
			return
		}
	}
	flush()
}

// accept trims and validates product and drops repeats.
func (p *Pipeline) accept(product *models.Product) bool {
	product.Title = strings.TrimSpace(product.Title)
	product.Seller = strings.TrimSpace(product.Seller)
	if err := parser.ValidateProduct(product); err != nil {
		p.invalid.Add(1)
		return false
	}
	if seen, _ := p.seen.ContainsOrAdd(dedupKey(product), struct{}{}); seen {
		p.duplicates.Add(1)
		return false
	}
	return true
}

// dedupKey prefers the listing link; cards without one fall back to the
// title, seller and price.
func dedupKey(p *models.Product) string {
	if p.Link != "" {
		return p.Link
	}
	return fmt.Sprintf("%s|%s|%d", strings.ToLower(p.Title), strings.ToLower(p.Seller), p.Price)
}

func (p *Pipeline) fail(err error) {
	p.failOnce.Do(func() {
		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()
		close(p.failed)
	})
}
