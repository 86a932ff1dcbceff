package prober

import (
	"fmt"
	"runtime"
)

// panicToError converts a recovered value into an error carrying the stack.
// It returns defaultErr when nothing was recovered.
func panicToError(thrown any, defaultErr error) error {
	if thrown == nil {
		return defaultErr
	}
	const size = 64 << 10
	trace := make([]byte, size)
	trace = trace[:runtime.Stack(trace, false)]
	if err, ok := thrown.(error); ok {
		return fmt.Errorf("panic: %w\n%s", err, trace)
	}
	return fmt.Errorf("panic: %v\n%s", thrown, trace)
}
