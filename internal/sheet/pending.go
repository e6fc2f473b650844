package sheet

import "context"

// Pending is the single-shot result of one Source fetch. It completes
// exactly once, with rows or with an error.
type Pending struct {
	source Source
	done   chan struct{}
	rows   []Row
	err    error
}

// Fetch starts reading src in the background. Cancelling ctx aborts the
// read if the source honours it; there is no other way to stop a fetch.
func Fetch(ctx context.Context, src Source) *Pending {
	p := &Pending{source: src, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.rows, p.err = src.Rows(ctx)
	}()
	return p
}

// Source returns the source being fetched.
func (p *Pending) Source() Source { return p.source }

// Done is closed when the fetch has finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the fetch finishes or ctx ends.
func (p *Pending) Wait(ctx context.Context) ([]Row, error) {
	select {
	case <-p.done:
		return p.rows, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then runs ok with the rows when the fetch succeeds, or failed with the
// error otherwise. failed may be nil, in which case a failure is dropped
// and nothing downstream changes. The returned channel is closed after the
// continuation has run.
func (p *Pending) Then(ok func([]Row), failed func(error)) <-chan struct{} {
	ran := make(chan struct{})
	go func() {
		defer close(ran)
		<-p.done
		if p.err != nil {
			if failed != nil {
				failed(p.err)
			}
			return
		}
		ok(p.rows)
	}()
	return ran
}
