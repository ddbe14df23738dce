package netserver

import (
	"bufio"
	"fmt"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"

	"github.com/ensodb/enso/internal/authz"
	"github.com/ensodb/enso/internal/engine"
	"github.com/ensodb/enso/internal/schema"
	"github.com/ensodb/enso/internal/sql"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENSO_CONFIG_DIR", filepath.Join(dir, "config"))

	eng, err := engine.Open(engine.Config{Dir: filepath.Join(dir, "data")})
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	sm, err := schema.Open(filepath.Join(dir, "schema"))
	require.NoError(t, err)

	en, err := authz.Open()
	require.NoError(t, err)

	ex := sql.NewExecutor(eng, sm, en)

	port := dynaport.Get(1)[0]
	srv, err := New(Config{BindAddr: fmt.Sprintf("127.0.0.1:%d", port)}, eng, ex)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown() })

	return srv, eng
}

func sendLine(t *testing.T, conn net.Conn, reader *bufio.Reader, line string) string {
	t.Helper()
	_, err := fmt.Fprintln(conn, line)
	require.NoError(t, err)

	resp, err := reader.ReadString('\n')
	require.NoError(t, err)

	sentinel, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, eofSentinel+"\n", sentinel)

	return resp
}

func TestPutGetOverTCP(t *testing.T) {
	srv, _ := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	resp := sendLine(t, conn, reader, "PUT k v1")
	require.Equal(t, "OK\n", resp)

	resp = sendLine(t, conn, reader, "GET k")
	require.Equal(t, "VALUE v1\n", resp)
}

func TestGetMissingKeyOverTCP(t *testing.T) {
	srv, _ := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	resp := sendLine(t, conn, reader, "GET missing")
	require.Equal(t, "NOT_FOUND\n", resp)
}

func TestEveryResponseEndsWithSentinelEvenOnError(t *testing.T) {
	srv, _ := newTestServer(t)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	resp := sendLine(t, conn, reader, "PUT onlyonearg")
	require.Contains(t, resp, "ERR")
}

func TestShutdownIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NoError(t, srv.Shutdown())
	require.NoError(t, srv.Shutdown())
}
