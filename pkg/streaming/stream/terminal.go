package stream

import (
	"context"
)

// ForEach pulls every element of src and passes it to action, then closes
// src. It stops at the first error from src or action.
func ForEach[T any](ctx context.Context, src Source[T], action func(context.Context, T) error) error {
	defer func() { _ = src.Close() }()

	for {
		v, ok, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := action(ctx, v); err != nil {
			return err
		}
	}
}

// Pipe is ForEach with a sink; it reads as the end of a pipeline.
func Pipe[T any](ctx context.Context, src Source[T], sink func(context.Context, T) error) error {
	return ForEach(ctx, src, sink)
}

// ToSlice collects every element of src.
func ToSlice[T any](ctx context.Context, src Source[T]) ([]T, error) {
	var out []T
	err := ForEach(ctx, src, func(_ context.Context, v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// Count returns the number of elements in src.
func Count[T any](ctx context.Context, src Source[T]) (int64, error) {
	var n int64
	err := ForEach(ctx, src, func(context.Context, T) error {
		n++
		return nil
	})
	return n, err
}

// Drain consumes src, discarding its elements.
func Drain[T any](ctx context.Context, src Source[T]) error {
	return ForEach(ctx, src, func(context.Context, T) error { return nil })
}

// Reduce folds src into a single value starting from identity.
func Reduce[T, A any](ctx context.Context, src Source[T], identity A, accumulator func(A, T) A) (A, error) {
	acc := identity
	err := ForEach(ctx, src, func(_ context.Context, v T) error {
		acc = accumulator(acc, v)
		return nil
	})
	return acc, err
}
