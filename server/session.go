package server

import (
	"bufio"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// unit is one element of a session's outbound queue. A final unit is the
// end-of-session sentinel: the send worker stops consuming and closes the
// connection.
type unit struct {
	body  string
	final bool
}

// Session is one authenticated connection. The outbound queue is a bounded
// channel; a full queue makes producers wait, which is the only backpressure
// against a stalled reader.
type Session struct {
	Username string

	conn         net.Conn
	out          chan unit
	qmu          sync.Mutex    // serializes enqueues against the sentinel
	closing      chan struct{} // closed once the sentinel is queued
	closingOnce  sync.Once
	done         chan struct{} // closed when the send worker exits
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newSession(username string, conn net.Conn, queueSize int, writeTimeout time.Duration) *Session {
	return &Session{
		Username:     username,
		conn:         conn,
		out:          make(chan unit, queueSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Enqueue places a payload on the outbound queue. It waits while the queue
// is full but returns false once the session is closing or its send worker
// has terminated, so no producer ever blocks on a dead session and nothing
// is queued behind the sentinel. Callers that get false fall back to the
// offline store.
func (s *Session) Enqueue(body string) bool {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	select {
	case <-s.closing:
		return false
	default:
	}

	select {
	case s.out <- unit{body: body}:
		return true
	case <-s.done:
		return false
	}
}

// EnqueueFinal places the end-of-session sentinel on the outbound queue.
// Every later Enqueue fails.
func (s *Session) EnqueueFinal() {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	s.closingOnce.Do(func() { close(s.closing) })

	select {
	case s.out <- unit{final: true}:
	case <-s.done:
	}
}

// Run starts the send and receive workers and blocks until both have
// terminated. dispatch handles one received line and reports whether the
// receive worker should stop.
func (s *Session) Run(reader *bufio.Reader, dispatch func(line string) bool) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.sendLoop()
	}()

	go func() {
		defer wg.Done()
		s.recvLoop(reader, dispatch)
	}()

	wg.Wait()
}

func (s *Session) sendLoop() {
	defer s.shutdown()

	for u := range s.out {
		if u.final {
			return
		}

		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if _, err := s.conn.Write([]byte(u.body + "\n")); err != nil {
			log.Printf("Error writing to %s: %v", s.Username, err)
			return
		}
	}
}

// shutdown marks the send worker finished and closes the connection, which
// also unblocks the receive worker's pending read.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *Session) recvLoop(reader *bufio.Reader, dispatch func(line string) bool) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			// Broken connection: wake the send worker and stop.
			s.EnqueueFinal()
			return
		}

		// Only trailing whitespace is forgiven; leading whitespace makes
		// the line unrecognizable like any other malformed input.
		line = strings.TrimRight(line, " \t\r\n")
		if line == "" {
			continue
		}

		if dispatch(line) {
			return
		}
	}
}
