package wapc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrPoolClosed is returned by a closed HostPool.
var ErrPoolClosed = errors.New("host pool closed")

// HostFactory creates a new, initialized Host.
type HostFactory func(ctx context.Context) (*Host, error)

// HostPool manages a bounded set of hosts running the same guest module.
type HostPool struct {
	pool    chan *Host
	maxSize int
	factory HostFactory

	mu     sync.Mutex
	hosts  []*Host
	module []byte
	closed bool
}

// NewHostPool returns a pool that creates at most maxSize hosts on demand.
func NewHostPool(maxSize int, factory HostFactory) *HostPool {
	if maxSize < 1 {
		maxSize = 1
	}

	return &HostPool{
		pool:    make(chan *Host, maxSize),
		maxSize: maxSize,
		factory: factory,
	}
}

// Get returns an idle host, creating one if the pool is below capacity.
func (p *HostPool) Get(ctx context.Context) (*Host, error) {
	for {
		select {
		case h := <-p.pool:
			if p.owns(h) {
				return h, nil
			}

			continue
		default:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if len(p.hosts) < p.maxSize {
			h, err := p.newHost(ctx)
			p.mu.Unlock()

			return h, err
		}
		p.mu.Unlock()

		// Wait for a host to be returned.
		select {
		case h := <-p.pool:
			if p.owns(h) {
				return h, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// newHost creates a host running the pool's module. p.mu must be held.
func (p *HostPool) newHost(ctx context.Context) (*Host, error) {
	h, err := p.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create host: %w", err)
	}
	// bring a late host up to the module the rest of the pool runs.
	if p.module != nil {
		if err := h.ReplaceModule(ctx, p.module); err != nil {
			_ = h.Close(ctx)
			return nil, fmt.Errorf("failed to update new host: %w", err)
		}
	}
	p.hosts = append(p.hosts, h)

	return h, nil
}

// owns reports whether h is still one of the pool's live hosts.
func (p *HostPool) owns(h *Host) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.closed && slices.Contains(p.hosts, h)
}

// Put returns a host to the pool. Hosts the pool no longer owns, because the pool was
// closed or the host was retired by a failed swap, are closed instead.
func (p *HostPool) Put(h *Host) {
	if !p.owns(h) {
		_ = h.Close(context.Background())
		return
	}

	select {
	case p.pool <- h:
	default:
	}
}

// Call runs operation on an idle host.
func (p *HostPool) Call(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	h, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Put(h)

	return h.Call(ctx, operation, payload)
}

// ReplaceModule hot-swaps the module of every host created so far and of hosts created later.
// If a host fails to swap, the hosts already swapped are retired so every remaining and
// future host keeps running the previous module.
func (p *HostPool) ReplaceModule(ctx context.Context, module []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	for i, h := range p.hosts {
		if err := h.ReplaceModule(ctx, module); err != nil {
			errs := []error{fmt.Errorf("host %s: %w", h.ID(), err)}
			for _, swapped := range p.hosts[:i] {
				errs = append(errs, swapped.Close(ctx))
			}
			p.hosts = append([]*Host(nil), p.hosts[i:]...)

			return errors.Join(errs...)
		}
	}
	p.module = append([]byte(nil), module...)

	return nil
}

// Size returns the number of hosts created so far.
func (p *HostPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.hosts)
}

// Close closes every host. Hosts checked out at the time are closed too.
func (p *HostPool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, h := range p.hosts {
		if err := h.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.hosts = nil

	for {
		select {
		case <-p.pool:
		default:
			return errors.Join(errs...)
		}
	}
}
