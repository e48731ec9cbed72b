/*
Package channel provides the bounded, context-aware queue that sits between
a goroutine-driven stream stage and its consumer.

A BackpressureChannel is a Go channel plus a close signal that carries an
optional terminal error. Producers Send; the single consumer Receives until
it sees ErrChannelClosed or the error passed to CloseWithError. Values
already buffered when the channel is closed are still delivered.

BufferSize is the high-water-mark. Zero means no lookahead: a send
completes only when the consumer takes the value.

Strategies decide what happens when the buffer is full:

	Block      wait for space, the consumer, ctx cancellation or Close
	Drop       discard the value being sent
	DropOldest discard the oldest buffered value and retry
	Error      return ErrChannelFull

Example:

	ch := channel.NewWithConfig[int](channel.Config{BufferSize: 4, Strategy: channel.Block})
	go func() {
		for i := 0; i < 10; i++ {
			if err := ch.Send(ctx, i); err != nil {
				break
			}
		}
		_ = ch.Close()
	}()
	for {
		v, err := ch.Receive(ctx)
		if errors.Is(err, channel.ErrChannelClosed) {
			break
		}
		...
	}
*/
package channel
