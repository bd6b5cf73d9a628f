package server

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"chatd/db"
	"chatd/protocol"
)

const greeting = "Welcome to server!\n" +
	"If you want to log in type 'LOGIN USERNAME PASSWORD', " +
	"or if you want to register type 'REGISTER USERNAME PASSWORD'.\n" +
	"Anytime you need help, type 'HELP'."

const authHelp = "Available commands:\n" +
	"REGISTER <username> <password> - create an account and log in\n" +
	"LOGIN <username> <password>    - log in with an existing account\n" +
	"HELP                           - show this summary\n" +
	"EXIT                           - disconnect"

const farewell = "Goodbye!"

const storeFailure = "internal server error, try again later"

type Server struct {
	db       *db.DB
	config   *ServerConfig
	gate     *gate
	metrics  *Metrics
	presence map[string]*Session
	mu       sync.RWMutex
	listener net.Listener
}

type ServerConfig struct {
	Host           string
	Port           int
	MaxConnections int
	QueueSize      int
	WriteTimeout   time.Duration
	MetricsPort    int
}

func New(database *db.DB, config *ServerConfig) *Server {
	if config.MaxConnections <= 0 {
		config.MaxConnections = 100
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}

	return &Server{
		db:       database,
		config:   config,
		gate:     newGate(config.MaxConnections),
		metrics:  NewMetrics(),
		presence: make(map[string]*Session),
	}
}

// Start listens on the configured address and accepts connections until the
// listener is closed. The accept loop itself never blocks on a client: each
// admitted connection runs on its own goroutine, and a full gate closes the
// connection immediately.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Printf("chatd listening on %s (max %d connections)", listener.Addr(), s.gate.Capacity())

	s.startMetricsServer()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			log.Printf("Error accepting connection: %v", err)
			continue
		}

		if !s.gate.TryAcquire() {
			log.Printf("Connection from %s rejected: %d/%d slots in use",
				conn.RemoteAddr(), s.gate.Load(), s.gate.Capacity())
			s.metrics.RecordAdmissionRejected()
			conn.Close()
			continue
		}

		go func() {
			defer s.gate.Release()
			s.handleConnection(conn)
		}()
	}
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) startMetricsServer() {
	if s.config.MetricsPort <= 0 {
		return
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK\n"))
		})

		addr := fmt.Sprintf(":%d", s.config.MetricsPort)
		log.Printf("Metrics server listening on %s (/metrics, /health)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}

// handleConnection runs the full lifetime of one admitted connection:
// handshake, then the session worker pair, then teardown.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	log.Printf("New client connected from %s", remoteAddr)
	s.metrics.RecordConnection()

	reader := bufio.NewReader(conn)
	sess := s.handshake(conn, reader)
	if sess == nil {
		log.Printf("Client disconnected from %s", remoteAddr)
		return
	}

	log.Printf("User %s logged in from %s", sess.Username, remoteAddr)

	sess.Run(reader, func(line string) bool {
		return s.dispatch(sess, line)
	})

	// Both workers have terminated; only now is the session removed, so
	// routing never targets a half-closed session.
	s.removePresence(sess.Username)
	log.Printf("User %s disconnected from %s", sess.Username, remoteAddr)
}

// handshake drives the pre-auth state machine. It returns an authenticated
// session with its offline backlog already queued, or nil when the client
// exited or the connection broke.
func (s *Server) handshake(conn net.Conn, reader *bufio.Reader) *Session {
	s.writeLine(conn, greeting)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}

		line = strings.TrimRight(line, " \t\r\n")
		if line == "" {
			continue
		}

		cmd := protocol.ParseAuth(line)
		switch cmd.Kind {
		case protocol.Register:
			err := s.db.CreateUser(cmd.Name, cmd.Arg)
			if errors.Is(err, db.ErrDuplicateUser) {
				s.writeLine(conn, "username already in use")
				continue
			}
			if err != nil {
				log.Printf("Register error for %s: %v", cmd.Name, err)
				s.writeLine(conn, storeFailure)
				continue
			}
			s.metrics.RecordRegistration()

			sess, ok := s.startSession(conn, cmd.Name)
			if !ok {
				continue
			}
			s.writeLine(conn, "registered, welcome "+cmd.Name+"!")
			return sess

		case protocol.Login:
			found, valid, err := s.db.AuthenticateUser(cmd.Name, cmd.Arg)
			if err != nil {
				log.Printf("Auth error for %s: %v", cmd.Name, err)
				s.writeLine(conn, storeFailure)
				continue
			}
			if !found {
				s.writeLine(conn, "wrong username")
				continue
			}
			if !valid {
				s.metrics.RecordAuthFailure()
				s.writeLine(conn, "wrong password")
				continue
			}

			sess, ok := s.startSession(conn, cmd.Name)
			if !ok {
				continue
			}
			s.writeLine(conn, "logged in, welcome "+cmd.Name+"!")
			return sess

		case protocol.Help:
			s.writeLine(conn, authHelp)

		case protocol.Exit:
			s.writeLine(conn, farewell)
			return nil

		default:
			s.writeLine(conn, "unknown command, type HELP")
		}
	}
}

// startSession claims the username in the presence directory and loads the
// offline backlog into the outbound queue. The presence claim comes first:
// a second login of an already-online username is rejected here, and the
// backlog is only ever drained into a session that will actually run.
func (s *Server) startSession(conn net.Conn, username string) (*Session, bool) {
	sess := newSession(username, conn, s.config.QueueSize, s.config.WriteTimeout)

	if !s.addPresence(username, sess) {
		s.writeLine(conn, "user "+username+" is already logged in")
		return nil, false
	}

	backlog, err := s.db.DrainOffline(username)
	if err != nil {
		log.Printf("Offline drain error for %s: %v", username, err)
		s.removePresence(username)
		s.writeLine(conn, storeFailure)
		return nil, false
	}

	// Queue capacity is at least as important here as on the live path:
	// an oversized backlog simply waits for the send worker to catch up.
	go func() {
		for _, msg := range backlog {
			if !sess.Enqueue(msg.Body) {
				return
			}
		}
	}()

	return sess, true
}

func (s *Server) writeLine(conn net.Conn, line string) {
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		log.Printf("Error writing to connection: %v", err)
	}
}

// Presence directory. Every read-modify-write goes through the one mutex;
// addPresence is an atomic check-then-insert.

func (s *Server) addPresence(username string, sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presence[username]; ok {
		return false
	}
	s.presence[username] = sess
	s.metrics.RecordActiveSessions(len(s.presence))
	return true
}

func (s *Server) removePresence(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, username)
	s.metrics.RecordActiveSessions(len(s.presence))
}

func (s *Server) getPresence(username string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.presence[username]
	return sess, ok
}

// Stats returns a summary line for the control socket.
func (s *Server) Stats() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []string
	for username := range s.presence {
		users = append(users, username)
	}

	return fmt.Sprintf("connections=%d/%d,sessions=%d,users=%s",
		s.gate.Load(), s.gate.Capacity(), len(s.presence), strings.Join(users, ";"))
}

// Shutdown stops accepting connections, asks every live session to drain
// and close, and waits until each session's send worker has flushed the
// farewell and terminated. Callers may exit the process as soon as it
// returns. The wait is bounded: a stalled client runs into the write
// deadline, which ends its send worker.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	sessions := make([]*Session, 0, len(s.presence))
	for _, sess := range s.presence {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Enqueue("server is shutting down")
		sess.EnqueueFinal()
	}

	for _, sess := range sessions {
		<-sess.done
	}
}
