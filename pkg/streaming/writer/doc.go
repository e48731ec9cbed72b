/*
Package writer provides an asynchronous, buffered io.WriteCloser used as
the sink for report files.

Writes are collected in memory and handed to a background goroutine in
buffers of Config.BufferSize bytes; a ticker flushes partly filled buffers
every Config.FlushInterval. At most Config.MaxPending buffers wait for the
goroutine, after which Write blocks, so a slow disk slows the pipeline
down instead of growing memory.

	f, _ := os.Create("report.csv")
	w := writer.NewWithConfig(f, writer.Config{CloseUnderlying: true})
	cw := csv.NewWriter(w)
	...
	cw.Flush()
	if err := w.Close(); err != nil {
		return err
	}

A write to the underlying writer that keeps failing after Config.MaxRetries
is sticky: it is reported to Config.OnError once and returned from every
later Write, Flush and Close.
*/
package writer
