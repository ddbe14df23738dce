package shell

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ensodb/enso/internal/authz"
	"github.com/ensodb/enso/internal/engine"
	"github.com/ensodb/enso/internal/schema"
	"github.com/ensodb/enso/internal/sql"
)

func newTestShell(t *testing.T) *Shell {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENSO_CONFIG_DIR", filepath.Join(dir, "config"))

	eng, err := engine.Open(engine.Config{Dir: filepath.Join(dir, "data")})
	if err != nil {
		t.Fatalf("engine.Open: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	sm, err := schema.Open(filepath.Join(dir, "schema"))
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	en, err := authz.Open()
	if err != nil {
		t.Fatalf("authz.Open: %v", err)
	}

	ex := sql.NewExecutor(eng, sm, en)
	return New(ex, sm, "anonymous")
}

func TestHandleLineQuitCommand(t *testing.T) {
	sh := newTestShell(t)
	_, quit := sh.HandleLine(`\q`)
	if !quit {
		t.Fatal("expected \\q to signal quit")
	}
}

func TestHandleLineDescribeTable(t *testing.T) {
	sh := newTestShell(t)
	if out, _ := sh.HandleLine("USE shop"); strings.Contains(out, "ERR") {
		t.Fatalf("USE failed: %s", out)
	}
	if out, _ := sh.HandleLine(`CREATE TABLE orders (id INT, customer STRING, PRIMARY KEY(id));`); strings.Contains(out, "ERR") {
		t.Fatalf("CREATE TABLE failed: %s", out)
	}

	out, quit := sh.HandleLine(`\d orders`)
	if quit {
		t.Fatal("describe should not quit")
	}
	if !strings.Contains(out, "id int (primary key)") {
		t.Fatalf("unexpected describe output: %q", out)
	}
}

func TestHandleLineReportsExecutorErrors(t *testing.T) {
	sh := newTestShell(t)
	out, quit := sh.HandleLine(`SELECT * FROM nope WHERE id = 1;`)
	if quit {
		t.Fatal("an error should not quit the shell")
	}
	if !strings.HasPrefix(out, "ERR") {
		t.Fatalf("expected an ERR-prefixed output, got %q", out)
	}
}
