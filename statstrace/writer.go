package statstrace

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/francoispqt/gojay"
)

const eventChanSize = 50

// Records are separated according to RFC 7464.
const recordSeparator = 0x1e

type writer struct {
	w io.WriteCloser

	referenceTime time.Time

	events     chan event
	encodeErr  error
	runStopped chan struct{}
	closeOnce  sync.Once
}

func newWriter(w io.WriteCloser, hdr *header) *writer {
	wr := &writer{
		w:             w,
		referenceTime: hdr.ReferenceTime,
		runStopped:    make(chan struct{}),
		events:        make(chan event, eventChanSize),
	}
	go wr.run(hdr)
	return wr
}

func (w *writer) RecordEvent(eventTime time.Time, details eventDetails) {
	w.events <- event{
		RelativeTime: eventTime.Sub(w.referenceTime),
		eventDetails: details,
	}
}

func (w *writer) run(hdr *header) {
	defer close(w.runStopped)
	buf := &bytes.Buffer{}
	buf.WriteByte(recordSeparator)
	enc := gojay.NewEncoder(buf)
	if err := enc.Encode(hdr); err != nil {
		panic(fmt.Sprintf("trace encoding into a bytes.Buffer failed: %s", err))
	}
	buf.WriteByte('\n')
	if _, err := w.w.Write(buf.Bytes()); err != nil {
		w.encodeErr = err
	}
	for ev := range w.events {
		if w.encodeErr != nil { // if encoding failed, just continue draining the event channel
			continue
		}
		buf.Reset()
		buf.WriteByte(recordSeparator)
		if err := enc.Encode(ev); err != nil {
			w.encodeErr = err
			continue
		}
		buf.WriteByte('\n')
		if _, err := w.w.Write(buf.Bytes()); err != nil {
			w.encodeErr = err
		}
	}
}

func (w *writer) Close() {
	w.closeOnce.Do(func() {
		if err := w.close(); err != nil {
			log.Printf("exporting stats trace failed: %s\n", err)
		}
	})
}

func (w *writer) close() error {
	close(w.events)
	<-w.runStopped
	if w.encodeErr != nil {
		w.w.Close()
		return w.encodeErr
	}
	return w.w.Close()
}
