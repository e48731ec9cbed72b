/*
Package stream provides composable, pull-based asynchronous sequences.

A Source is pulled one element at a time with Next(ctx) and released with
Close. Every operator takes one or more Sources and returns a new one, so a
pipeline is built inside out and driven by its last consumer:

	lines := stream.Lines(file)
	ids := stream.Filter(stream.Map(lines, trim), notBlank)
	rows, err := stream.ToSlice(ctx, ids)

Closing the last Source closes every stage above it, down to the original
input.

# Backpressure

Every stage has a high-water-mark, set with WithHighWaterMark. The default
is 0: a stage holds nothing, and each pull from downstream becomes exactly
one pull upstream. This keeps rate-limited network stages from fetching
ahead of the consumer. A positive mark lets the stage prefetch in a
goroutine until that many values are waiting.

# Operators

Filter, Map and FlatMap are sequential: callbacks run one at a time, in
input order, and an error from a callback or a FlatMap sub-sequence fails
the stage and closes upstream.

MergeMap drains one sub-sequence per input element concurrently. Output
order across sub-sequences is unspecified, and a failing sub-sequence is
logged and dropped without failing the output. Upstream failure is
surfaced once active sub-sequences have drained, or immediately after
cancelling them when WithEagerCancel is set.

SwitchMap keeps only the sub-sequence of the newest element alive; a new
element cancels the previous sub-sequence and discards what it had not yet
emitted.

Tee and MultiTee give several consumers the same elements and the same
termination, each at its own pace, within a bounded lag.

Zip reads the inputs in lockstep and ends at the shortest one, closing the
rest. Zip2 and Zip3 are typed variants.

# Errors

Stage-fatal errors end a stage for good: later calls to Next return the same
error. Errors caused by the caller's own context are returned but do not
poison the stage. ErrStreamClosed is returned after Close.

Sub-sequence failures in MergeMap and SwitchMap are reported through the
stage logger (zerolog) and counted with WithMetrics. Pipelines that must
keep per-item failures usually encode them as values instead, so that
every input produces exactly one output.
*/
package stream
