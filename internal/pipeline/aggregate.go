package pipeline

import (
	"betterlife-pipeline/internal/model"
)

// Flush is one batch the accumulator wants written.
// Records aliases the accumulator's buffer and is only valid until the
// next call to Accept.
type Flush struct {
	Format  model.Format
	Page    int // 1-based output page number
	Records []GenericRecord
}

// formatBuffer is the flush state of one output format
type formatBuffer struct {
	format    model.Format
	pageLimit int // fetch chunks per output page
	buffer    []GenericRecord
	pages     int // pages flushed so far
	chunks    int // chunks received since the last flush
	flushed   bool
}

// Accumulator buffers fetched pages per output format and decides when a
// buffer is big enough, or the stream has ended, to be written out.
//
// It is a single-consumer state machine: feed it every fetch result in
// page order through Accept and write out the flushes it returns.
type Accumulator struct {
	fetchPageSize int
	formats       []*formatBuffer
	done          bool
}

// NewAccumulator creates an accumulator. pageLimits maps each enabled
// format to the number of fetch chunks aggregated into one output page;
// formats are flushed in model.Formats order.
func NewAccumulator(fetchPageSize int, pageLimits map[model.Format]int) *Accumulator {
	acc := &Accumulator{fetchPageSize: fetchPageSize}
	for _, format := range model.Formats {
		limit, ok := pageLimits[format]
		if !ok {
			continue
		}
		if limit < 1 {
			limit = 1
		}
		acc.formats = append(acc.formats, &formatBuffer{format: format, pageLimit: limit})
	}
	return acc
}

// Accept takes one fetch result and returns the flushes it triggers.
// A result shorter than the fetch page size ends the stream: every
// non-empty buffer is flushed and Done reports true afterwards.
func (a *Accumulator) Accept(rows []GenericRecord) []Flush {
	if a.done {
		return nil
	}

	endOfStream := len(rows) < a.fetchPageSize

	var flushes []Flush
	for _, fb := range a.formats {
		if fb.flushed {
			fb.buffer = fb.buffer[:0]
			fb.flushed = false
		}

		fb.buffer = append(fb.buffer, rows...)
		fb.chunks++

		full := fb.chunks == fb.pageLimit
		if (full || endOfStream) && len(fb.buffer) > 0 {
			fb.pages++
			flushes = append(flushes, Flush{
				Format:  fb.format,
				Page:    fb.pages,
				Records: fb.buffer,
			})
			fb.flushed = true
		}
		if full || fb.flushed {
			fb.chunks = 0
		}
	}

	if endOfStream {
		a.done = true
	}
	return flushes
}

// Done reports whether the end of the stream has been seen. Every
// buffer has been handed out as a flush by then.
func (a *Accumulator) Done() bool {
	return a.done
}

// Pages returns the number of pages flushed for a format
func (a *Accumulator) Pages(format model.Format) int {
	for _, fb := range a.formats {
		if fb.format == format {
			return fb.pages
		}
	}
	return 0
}

// Buffered returns the number of records waiting in a format's buffer
func (a *Accumulator) Buffered(format model.Format) int {
	for _, fb := range a.formats {
		if fb.format == format {
			if fb.flushed {
				return 0
			}
			return len(fb.buffer)
		}
	}
	return 0
}
