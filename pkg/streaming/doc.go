/*
Package streaming holds the sequence machinery the report pipelines are
built on.

  - stream: pull-based sequences. A stage computes an element only when
    its consumer asks for one, unless a high-water-mark lets it run ahead.
  - channel: a bounded, context-aware queue with block, drop, drop-oldest
    and error strategies.
  - writer: an asynchronous writer that buffers data and writes it in the
    background.

Basic usage:

	w := writer.New(file)
	defer w.Close()

	rows := stream.Map(stream.Lines(in), parse)
	err := stream.ForEach(ctx, rows, func(ctx context.Context, r Row) error {
		_, err := w.WriteString(r.String())
		return err
	})
*/
package streaming
