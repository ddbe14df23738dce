// Package netserver is the line-oriented TCP front end: one statement
// per line, one goroutine per connection, a <ENSO_EOF> sentinel after
// every response. Shutdown closes a shutdowns channel (guarded by a
// mutex against double-close), closes the listener so no new
// connections are accepted, and then waits for in-flight connections
// to finish.
package netserver

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ensodb/enso/internal/engine"
	"github.com/ensodb/enso/internal/rowcodec"
	"github.com/ensodb/enso/internal/sql"
)

const eofSentinel = "<ENSO_EOF>"

// Config controls where the listener binds.
type Config struct {
	BindAddr string
}

// Server accepts connections and serves the line-oriented protocol over
// a shared Executor and Engine.
type Server struct {
	Config

	eng *engine.Engine
	ex  *sql.Executor

	listener net.Listener
	wg       sync.WaitGroup
	log      zerolog.Logger

	shutdown     bool
	shutdowns    chan struct{}
	shutdownLock sync.Mutex
}

// New binds cfg.BindAddr and starts accepting connections in the
// background. Callers should defer Shutdown.
func New(cfg Config, eng *engine.Engine, ex *sql.Executor) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Config:    cfg,
		eng:       eng,
		ex:        ex,
		listener:  ln,
		shutdowns: make(chan struct{}),
		log:       zerolog.New(os.Stderr).With().Str("component", "netserver").Logger(),
	}

	go s.serve()
	return s, nil
}

// Addr returns the listener's actual bound address (useful when
// BindAddr used port 0).
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdowns:
				return
			default:
				s.log.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	sess := &sql.Session{Subject: "anonymous"}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprintln(conn, eofSentinel)
			continue
		}
		response := s.dispatch(sess, line)
		fmt.Fprintln(conn, response)
		fmt.Fprintln(conn, eofSentinel)
	}
}

// dispatch handles the bare put/get/delete/scan/auth commands directly
// against the engine, and routes everything else through the SQL
// executor.
func (s *Server) dispatch(sess *sql.Session, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch strings.ToUpper(fields[0]) {
	case "AUTH":
		if len(fields) != 2 {
			return "ERR usage: AUTH <user>"
		}
		sess.Subject = fields[1]
		return "OK"
	case "PUT":
		return s.handlePut(sess, fields)
	case "GET":
		return s.handleGet(sess, fields)
	case "DELETE":
		// "DELETE <key>" is the bare command; a longer line is the SQL
		// DELETE statement and goes to the executor below.
		if len(fields) == 2 {
			return s.handleDelete(sess, fields)
		}
	case "SCAN":
		return s.handleScan(sess, fields)
	}

	res, err := s.ex.Execute(sess, line)
	if err != nil {
		return "ERR " + err.Error()
	}
	return formatResult(res)
}

// handlePut, handleGet, handleDelete, and handleScan serve the bare
// key-value commands directly against the engine. They carry no table
// object, so — unlike the SQL path — they are not run through the
// authorizer; sites that need per-table ACLs enforce them through SQL.

func (s *Server) handlePut(sess *sql.Session, fields []string) string {
	if len(fields) != 3 {
		return "ERR usage: PUT <key> <value>"
	}
	if err := s.eng.Put([]byte(fields[1]), []byte(fields[2])); err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

func (s *Server) handleGet(sess *sql.Session, fields []string) string {
	if len(fields) != 2 {
		return "ERR usage: GET <key>"
	}
	v, ok, err := s.eng.Get([]byte(fields[1]))
	if err != nil {
		return "ERR " + err.Error()
	}
	if !ok {
		return "NOT_FOUND"
	}
	return "VALUE " + string(v)
}

func (s *Server) handleDelete(sess *sql.Session, fields []string) string {
	if len(fields) != 2 {
		return "ERR usage: DELETE <key>"
	}
	if err := s.eng.Delete([]byte(fields[1])); err != nil {
		return "ERR " + err.Error()
	}
	return "OK"
}

func (s *Server) handleScan(sess *sql.Session, fields []string) string {
	if len(fields) != 2 {
		return "ERR usage: SCAN <prefix>"
	}
	kvs, err := s.eng.ScanPrefix([]byte(fields[1]))
	if err != nil {
		return "ERR " + err.Error()
	}
	var sb strings.Builder
	for i, kv := range kvs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(string(kv.Key))
		sb.WriteByte(' ')
		sb.WriteString(string(kv.Value))
	}
	return sb.String()
}

func formatResult(res *sql.Result) string {
	if res.Status != "" {
		return res.Status
	}
	var sb strings.Builder
	sb.WriteString(strings.Join(res.Columns, ","))
	for _, row := range res.Rows {
		sb.WriteByte('\n')
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = displayValue(v)
		}
		sb.WriteString(strings.Join(parts, ","))
	}
	return sb.String()
}

func displayValue(v rowcodec.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Tag {
	case rowcodec.TagInt:
		return fmt.Sprintf("%d", v.I)
	case rowcodec.TagFloat:
		return fmt.Sprintf("%g", v.F)
	case rowcodec.TagBool:
		return fmt.Sprintf("%t", v.B)
	case rowcodec.TagString:
		return v.S
	default:
		return ""
	}
}

// Shutdown stops accepting new connections, closes the listener, and
// waits for in-flight connections to finish. Safe to call more than
// once.
func (s *Server) Shutdown() error {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()

	if s.shutdown {
		return nil
	}
	s.shutdown = true
	close(s.shutdowns)

	err := s.listener.Close()
	s.wg.Wait()
	return err
}
