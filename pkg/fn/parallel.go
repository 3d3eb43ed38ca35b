package fn

import "sync"

// FanOut runs functions concurrently and returns results in order.
func FanOut[T any](fns ...func() T) []T {
	out := make([]T, len(fns))
	var wg sync.WaitGroup
	for i, f := range fns {
		wg.Add(1)
		go func(i int, f func() T) {
			defer wg.Done()
			out[i] = f()
		}(i, f)
	}
	wg.Wait()
	return out
}

// Settle runs every function concurrently and waits for all of them,
// regardless of individual failures. A panicking function settles as an
// error instead of taking the process down.
func Settle[T any](fns ...func() Result[T]) []Result[T] {
	guarded := make([]func() Result[T], len(fns))
	for i, f := range fns {
		guarded[i] = func() (r Result[T]) {
			defer func() {
				if p := recover(); p != nil {
					r = Errf[T]("panic: %v", p)
				}
			}()
			return f()
		}
	}
	return FanOut(guarded...)
}
