package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zalrik/chime/internal/task"
)

// runFunc invokes a synchronous callable. Without a timeout the call runs
// inline and any error or panic becomes the attempt's failure. With a
// timeout the call runs on a dedicated goroutine; on expiry that goroutine
// is abandoned, not cancelled — it may finish or fail later with no further
// effect on task state.
func runFunc(fn task.Func, timeout time.Duration) error {
	if timeout <= 0 {
		return callSafely(fn)
	}

	done := make(chan error, 1)
	go func() {
		done <- callSafely(fn)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return &TimeoutError{Timeout: timeout}
	}
}

// runCtxFunc invokes a cooperatively-cancellable callable. A configured
// timeout is applied through context cancellation, so unlike runFunc this
// path can be interrupted cleanly.
func runCtxFunc(ctx context.Context, fn task.CtxFunc, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := callCtxSafely(ctx, fn)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Timeout: timeout}
	}
	return err
}

func callSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn()
}

func callCtxSafely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
