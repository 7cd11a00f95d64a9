package effect

// Result carries one element of a subscription stream: a value or an error,
// never both.
type Result[T any] struct {
	Value T
	Err   error
}

func ResultFrom[T any](val T, err error) Result[T] {
	return Result[T]{Value: val, Err: err}
}

func Ok[T any](val T) Result[T] {
	return Result[T]{Value: val}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}
