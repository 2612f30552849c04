package utils

// Outcome is what a single pipeline stage produced: a value or the error that
// prevented it. Pipelines collect outcomes and decide how each failure shows
// up on their result.
type Outcome[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Outcome[T] { return Outcome[T]{Value: v} }

func Fail[T any](err error) Outcome[T] { return Outcome[T]{Err: err} }

func (o Outcome[T]) Failed() bool { return o.Err != nil }
