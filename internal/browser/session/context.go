package session

import (
	"context"
	"sync"
	"time"
)

// combinedContext is done as soon as either of two contexts is done and
// reports that context's error. Values resolve from the secondary first.
type combinedContext struct {
	parentCtx    context.Context
	secondaryCtx context.Context
	done         chan struct{}
	err          error
	mu           sync.Mutex
}

func (c *combinedContext) Deadline() (time.Time, bool) {
	d1, ok1 := c.parentCtx.Deadline()
	d2, ok2 := c.secondaryCtx.Deadline()
	switch {
	case !ok1 && !ok2:
		return time.Time{}, false
	case !ok1:
		return d2, true
	case !ok2:
		return d1, true
	case d1.Before(d2):
		return d1, true
	}
	return d2, true
}

func (c *combinedContext) Done() <-chan struct{} { return c.done }

func (c *combinedContext) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *combinedContext) Value(key interface{}) interface{} {
	if val := c.secondaryCtx.Value(key); val != nil {
		return val
	}
	return c.parentCtx.Value(key)
}

// CombineContext binds an operation to both the browser's lifetime (parent)
// and the caller's request (secondary). The chromedp target travels in the
// parent's values, so the combined context can be handed to chromedp.Run.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	if parentCtx == secondaryCtx || secondaryCtx == context.Background() || secondaryCtx == context.TODO() {
		return context.WithCancel(parentCtx)
	}
	c := &combinedContext{
		parentCtx:    parentCtx,
		secondaryCtx: secondaryCtx,
		done:         make(chan struct{}),
	}
	for _, ctx := range []context.Context{parentCtx, secondaryCtx} {
		if err := ctx.Err(); err != nil {
			c.err = err
			close(c.done)
			return c, func() {}
		}
	}

	stop := make(chan struct{}, 1)
	go func() {
		var err error
		select {
		case <-parentCtx.Done():
			err = parentCtx.Err()
		case <-secondaryCtx.Done():
			err = secondaryCtx.Err()
		case <-stop:
			err = context.Canceled
		}
		c.mu.Lock()
		if c.err == nil {
			c.err = err
			close(c.done)
		}
		c.mu.Unlock()
	}()
	return c, func() {
		select {
		case stop <- struct{}{}:
		case <-c.done:
		}
	}
}
