package log

import (
	"errors"
	"io"
)

// MultiWriter fans log output out to every appender. A failing appender does
// not stop the others.
type MultiWriter struct {
	writers []io.Writer
	closers []io.Closer
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

// Add appends a writer the MultiWriter does not own.
func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// AddOwned appends a writer that is closed together with the MultiWriter.
func (m *MultiWriter) AddOwned(writer io.WriteCloser) *MultiWriter {
	m.writers = append(m.writers, writer)
	m.closers = append(m.closers, writer)
	return m
}

// Close releases the owned appenders, such as open log files.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}
