package sqlkit

import (
	"context"
	"iter"
	"sync"
)

// StreamState is the lifecycle position of a Stream.
type StreamState uint8

const (
	StreamRunning StreamState = iota
	StreamPaused
	StreamEnded
	StreamFailed
	StreamCancelled
)

func (s StreamState) String() string {
	switch s {
	case StreamRunning:
		return "running"
	case StreamPaused:
		return "paused"
	case StreamEnded:
		return "ended"
	case StreamFailed:
		return "failed"
	case StreamCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further rows can be delivered.
func (s StreamState) Terminal() bool { return s >= StreamEnded }

// Stream delivers the rows of one cursor as they are fetched. A producer
// goroutine pulls rows into a bounded buffer; the consumer reads them with
// Next and Row. Pause, Resume and Cancel may be called from any goroutine.
//
//	s, err := client.Stream(ctx, sqlkit.SQL("SELECT * FROM events"))
//	if err != nil {
//		return err
//	}
//	defer s.Cancel()
//	for s.Next(ctx) {
//		handle(s.Row())
//	}
//	return s.Err()
type Stream struct {
	cur          Cursor
	cancelCursor context.CancelFunc
	columns      []string
	query        string
	onDone       func(error)

	rows     chan []any
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	paused    bool
	resume    chan struct{}
	cancelled bool
	finished  bool
	state     StreamState
	outcome   StreamState
	outErr    error
	err       error
	pending   []any
	row       Row
}

func newStream(cur Cursor, cancel context.CancelFunc, query string, columns []string, buffer int, onDone func(error)) *Stream {
	s := &Stream{
		cur:          cur,
		cancelCursor: cancel,
		query:        query,
		columns:      columns,
		onDone:       onDone,
		rows:         make(chan []any, buffer),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		state:        StreamRunning,
	}
	go s.produce()
	return s
}

func (s *Stream) produce() {
	var err error
	defer func() { s.finish(err) }()
	for {
		if !s.waitRunning() {
			return
		}
		if !s.cur.Next() {
			err = s.cur.Err()
			return
		}
		vals, verr := s.cur.Values()
		if verr != nil {
			err = verr
			return
		}
		select {
		case s.rows <- vals:
		case <-s.stop:
			return
		}
	}
}

// waitRunning blocks while the stream is paused. It returns false once the
// stream is canceled.
func (s *Stream) waitRunning() bool {
	for {
		s.mu.Lock()
		paused, ch := s.paused, s.resume
		s.mu.Unlock()
		if !paused {
			break
		}
		select {
		case <-ch:
		case <-s.stop:
			return false
		}
	}
	select {
	case <-s.stop:
		return false
	default:
		return true
	}
}

func (s *Stream) finish(err error) {
	cerr := s.cur.Close()
	s.cancelCursor()
	if err == nil {
		err = cerr
	}

	s.mu.Lock()
	var reported error
	switch {
	case s.cancelled:
		s.outcome = StreamCancelled
	case err != nil:
		s.outcome = StreamFailed
		s.outErr = &Error{Kind: KindStream, Query: s.query, msg: "sqlkit: stream failed: " + err.Error(), cause: err}
		reported = err
	default:
		s.outcome = StreamEnded
	}
	s.mu.Unlock()

	// The link is free before the consumer can observe the end.
	if s.onDone != nil {
		s.onDone(reported)
	}
	close(s.rows)
	close(s.done)
}

// Next advances to the next row, blocking while the stream is paused. It
// returns false after the last row, on failure, or once the stream is
// canceled. If ctx ends while waiting the stream is canceled and Err
// reports the context error.
func (s *Stream) Next(ctx context.Context) bool {
	for {
		s.mu.Lock()
		if s.cancelled || s.finished {
			s.row = nil
			s.mu.Unlock()
			return false
		}
		if s.paused {
			ch := s.resume
			s.mu.Unlock()
			select {
			case <-ch:
			case <-s.stop:
			case <-ctx.Done():
				s.abandon(ctx.Err())
				return false
			}
			continue
		}
		if s.pending != nil {
			s.row = makeRow(s.columns, s.pending)
			s.pending = nil
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()

		select {
		case vals, ok := <-s.rows:
			s.mu.Lock()
			if !ok {
				if !s.cancelled {
					s.finished = true
					s.state = s.outcome
					s.err = s.outErr
				}
				s.row = nil
				s.mu.Unlock()
				return false
			}
			// Held until the loop rechecks pause and cancel.
			s.pending = vals
			s.mu.Unlock()
		case <-s.stop:
		case <-ctx.Done():
			s.abandon(ctx.Err())
			return false
		}
	}
}

func (s *Stream) abandon(cause error) {
	s.Cancel()
	s.mu.Lock()
	s.err = &Error{Kind: KindStream, Query: s.query, msg: "sqlkit: stream abandoned: " + cause.Error(), cause: cause}
	s.row = nil
	s.mu.Unlock()
}

// Row returns the row produced by the last successful Next.
func (s *Stream) Row() Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row
}

// Columns returns the result column names, after the result-name transform.
func (s *Stream) Columns() []string { return s.columns }

// Err returns the failure that ended the stream, or nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State reports the stream state as seen by the consumer. Ended and Failed
// are reported once the buffered rows have been consumed.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return s.state
	}
	if s.paused {
		return StreamPaused
	}
	return StreamRunning
}

// Pause stops fetching rows and withholds delivery of rows already
// buffered until Resume.
func (s *Stream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.state.Terminal() {
		return
	}
	s.paused = true
	s.resume = make(chan struct{})
}

// Resume restarts a paused stream.
func (s *Stream) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resume)
}

// Cancel stops the stream and destroys the cursor. It waits for the
// producer to exit, so the link is free when Cancel returns. Calling it
// again, or after the stream ended, has no further effect.
func (s *Stream) Cancel() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if !s.state.Terminal() {
			s.cancelled = true
			s.state = StreamCancelled
			s.pending = nil
			s.row = nil
		}
		s.mu.Unlock()
		close(s.stop)
		s.cancelCursor()
	})
	<-s.done
}

// Close cancels the stream if it is still running and returns Err.
func (s *Stream) Close() error {
	s.Cancel()
	return s.Err()
}

// All iterates the remaining rows. Breaking out of the loop cancels the
// stream. A failure is yielded once, as the last pair.
func (s *Stream) All(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		for s.Next(ctx) {
			if !yield(s.Row(), nil) {
				s.Cancel()
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(nil, err)
		}
	}
}
