// Package sql is the SQL front end: a hand-rolled lexer and
// recursive-descent parser (lexer.go, parser.go, ast.go) feeding a
// tree-walking executor that resolves table metadata via
// internal/schema, authorizes via internal/authz, (de)serializes rows
// via internal/rowcodec, and calls the engine's four primitives.
package sql

import (
	"fmt"
	"strconv"

	"github.com/ensodb/enso/internal/authz"
	"github.com/ensodb/enso/internal/engine"
	"github.com/ensodb/enso/internal/ensoerr"
	"github.com/ensodb/enso/internal/rowcodec"
	"github.com/ensodb/enso/internal/schema"
)

// Result is what executing one statement produces: rows for SELECT,
// a bare status message for everything else.
type Result struct {
	Columns []string
	Rows    [][]rowcodec.Value
	Status  string
}

// Session holds the per-connection state the executor needs beyond the
// statement itself: which database USE selected, and who authenticated
// via AUTH.
type Session struct {
	Database string
	Subject  string
}

// Executor ties the SQL front end to the engine, schema manager, and
// authorizer. One Executor is shared by every connection; state that
// varies per connection lives in Session.
type Executor struct {
	eng    *engine.Engine
	schema *schema.Manager
	authz  *authz.Enforcer
}

func NewExecutor(eng *engine.Engine, sm *schema.Manager, en *authz.Enforcer) *Executor {
	return &Executor{eng: eng, schema: sm, authz: en}
}

// Execute parses and runs one statement in the context of sess,
// mutating sess.Database on a successful USE.
func (ex *Executor) Execute(sess *Session, src string) (*Result, error) {
	stmt, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return ex.run(sess, stmt)
}

func (ex *Executor) run(sess *Session, stmt Stmt) (*Result, error) {
	if u, ok := stmt.(*UseStmt); ok {
		sess.Database = u.Database
		return &Result{Status: "OK"}, nil
	}

	if sess.Database == "" {
		return nil, ensoerr.Parse("no database selected; run USE <db> first")
	}

	switch s := stmt.(type) {
	case *CreateTableStmt:
		return ex.execCreateTable(sess, s)
	case *DropTableStmt:
		return ex.execDropTable(sess, s)
	case *InsertStmt:
		return ex.execInsert(sess, s)
	case *SelectStmt:
		return ex.execSelect(sess, s)
	case *DeleteStmt:
		return ex.execDelete(sess, s)
	default:
		return nil, ensoerr.Parse("unsupported statement")
	}
}

func (ex *Executor) authorize(sess *Session, table, action string) error {
	object := sess.Database + "." + table
	return ex.authz.Authorize(sess.Subject, object, action)
}

func (ex *Executor) execCreateTable(sess *Session, s *CreateTableStmt) (*Result, error) {
	if err := ex.authorize(sess, s.Table, authz.ActionWrite); err != nil {
		return nil, err
	}
	cols := make([]schema.Column, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = schema.Column{Name: c.Name, Type: c.Type}
	}
	t := &schema.Table{
		Database:   sess.Database,
		Name:       s.Table,
		PrimaryKey: s.PrimaryKey,
		Columns:    cols,
	}
	if t.ColumnIndex(t.PrimaryKey) < 0 {
		return nil, ensoerr.Parse("primary key %q is not a declared column", t.PrimaryKey)
	}
	if err := ex.schema.CreateTable(t); err != nil {
		return nil, err
	}
	return &Result{Status: "OK"}, nil
}

func (ex *Executor) execDropTable(sess *Session, s *DropTableStmt) (*Result, error) {
	if err := ex.authorize(sess, s.Table, authz.ActionWrite); err != nil {
		return nil, err
	}
	if err := ex.schema.DropTable(sess.Database, s.Table); err != nil {
		return nil, err
	}
	return &Result{Status: "OK"}, nil
}

func (ex *Executor) execInsert(sess *Session, s *InsertStmt) (*Result, error) {
	if err := ex.authorize(sess, s.Table, authz.ActionWrite); err != nil {
		return nil, err
	}
	t, err := ex.schema.LoadTable(sess.Database, s.Table)
	if err != nil {
		return nil, err
	}

	row := make(rowcodec.Row, len(t.Columns))
	for i, colName := range s.Columns {
		idx := t.ColumnIndex(colName)
		if idx < 0 {
			return nil, ensoerr.Parse("unknown column %q in table %s.%s", colName, sess.Database, s.Table)
		}
		row[idx] = s.Values[i]
	}
	if err := t.ValidateRow(row); err != nil {
		return nil, err
	}

	pkIdx := t.ColumnIndex(t.PrimaryKey)
	key := rowKey(sess.Database, s.Table, row[pkIdx])
	if err := ex.eng.Put([]byte(key), rowcodec.EncodeRow(row)); err != nil {
		return nil, err
	}
	return &Result{Status: "OK"}, nil
}

func (ex *Executor) execSelect(sess *Session, s *SelectStmt) (*Result, error) {
	if err := ex.authorize(sess, s.Table, authz.ActionRead); err != nil {
		return nil, err
	}
	t, err := ex.schema.LoadTable(sess.Database, s.Table)
	if err != nil {
		return nil, err
	}
	if s.Where == nil {
		return nil, ensoerr.Parse("SELECT requires a WHERE clause on the primary key")
	}
	if s.Where.Column != t.PrimaryKey {
		return nil, ensoerr.Parse("WHERE is only supported on the primary key column %q", t.PrimaryKey)
	}

	var rows []rowcodec.Row
	switch s.Where.Op {
	case PredEq:
		key := rowKey(sess.Database, s.Table, s.Where.Eq)
		val, ok, err := ex.eng.Get([]byte(key))
		if err != nil {
			return nil, err
		}
		if ok {
			row, err := rowcodec.DecodeRow(val)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	case PredLikePrefix:
		prefix := rowKeyPrefix(sess.Database, s.Table, s.Where.Prefix)
		kvs, err := ex.eng.ScanPrefix([]byte(prefix))
		if err != nil {
			return nil, err
		}
		for _, kv := range kvs {
			row, err := rowcodec.DecodeRow(kv.Value)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	default:
		return nil, ensoerr.Parse("unsupported WHERE predicate")
	}

	columns := s.Columns
	if len(columns) == 0 {
		for _, c := range t.Columns {
			columns = append(columns, c.Name)
		}
	}

	out := make([][]rowcodec.Value, 0, len(rows))
	for _, row := range rows {
		projected := make([]rowcodec.Value, len(columns))
		for i, colName := range columns {
			idx := t.ColumnIndex(colName)
			if idx < 0 {
				return nil, ensoerr.Parse("unknown column %q in table %s.%s", colName, sess.Database, s.Table)
			}
			projected[i] = row[idx]
		}
		out = append(out, projected)
	}

	return &Result{Columns: columns, Rows: out}, nil
}

func (ex *Executor) execDelete(sess *Session, s *DeleteStmt) (*Result, error) {
	if err := ex.authorize(sess, s.Table, authz.ActionWrite); err != nil {
		return nil, err
	}
	t, err := ex.schema.LoadTable(sess.Database, s.Table)
	if err != nil {
		return nil, err
	}
	if s.Where.Column != t.PrimaryKey || s.Where.Op != PredEq {
		return nil, ensoerr.Parse("DELETE only supports an equality WHERE on the primary key %q", t.PrimaryKey)
	}

	key := rowKey(sess.Database, s.Table, s.Where.Eq)
	if err := ex.eng.Delete([]byte(key)); err != nil {
		return nil, err
	}
	return &Result{Status: "OK"}, nil
}

// rowKey renders a row's engine key as "<db>:<table>:<pk display
// string>", the convention the SQL layer uses to map rows onto the
// raw key-value primitives underneath it.
func rowKey(db, table string, pk rowcodec.Value) string {
	return rowKeyPrefix(db, table, displayValue(pk))
}

func rowKeyPrefix(db, table, pkPrefix string) string {
	return fmt.Sprintf("%s:%s:%s", db, table, pkPrefix)
}

func displayValue(v rowcodec.Value) string {
	switch v.Tag {
	case rowcodec.TagInt:
		return strconv.FormatInt(v.I, 10)
	case rowcodec.TagFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case rowcodec.TagBool:
		return strconv.FormatBool(v.B)
	case rowcodec.TagString:
		return v.S
	default:
		return ""
	}
}
