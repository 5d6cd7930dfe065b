package extract

import "fmt"

// Field is an optional value read from one field group.
type Field[T any] struct {
	Value T
	OK    bool
}

// Some wraps a present value.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, OK: true}
}

// None is an absent value.
func None[T any]() Field[T] {
	return Field[T]{}
}

// OrZero returns the value, or the zero value when absent.
func (f Field[T]) OrZero() T {
	return f.Value
}

// fault records one field group that failed while reading.
type fault struct {
	Group string
	Cause error
}

// guard runs read and converts a panic into an absent field plus a fault.
func guard[T any](group string, faults *[]fault, read func() Field[T]) (out Field[T]) {
	defer func() {
		if r := recover(); r != nil {
			*faults = append(*faults, fault{Group: group, Cause: fmt.Errorf("panic: %v", r)})
			out = None[T]()
		}
	}()
	return read()
}
