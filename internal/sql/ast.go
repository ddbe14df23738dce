package sql

import (
	"github.com/ensodb/enso/internal/rowcodec"
	"github.com/ensodb/enso/internal/schema"
)

// Stmt is any parsed statement. Concrete types below.
type Stmt interface{ stmt() }

type ColumnDef struct {
	Name string
	Type schema.ColumnType
}

type CreateTableStmt struct {
	Table      string
	Columns    []ColumnDef
	PrimaryKey string
}

type DropTableStmt struct {
	Table string
}

type InsertStmt struct {
	Table   string
	Columns []string
	Values  []rowcodec.Value
}

// PredOp is the kind of comparison a WHERE clause performs. Only
// equality and prefix-LIKE are supported; anything else is a Parse
// error at parse time, never reaches the executor.
type PredOp int

const (
	PredEq PredOp = iota
	PredLikePrefix
)

// Predicate is a single `<column> = <literal>` or
// `<column> LIKE '<prefix>%'` clause.
type Predicate struct {
	Column string
	Op     PredOp
	Eq     rowcodec.Value
	Prefix string
}

type SelectStmt struct {
	Table   string
	Columns []string // nil means "*"
	Where   *Predicate
}

type DeleteStmt struct {
	Table string
	Where *Predicate
}

type UseStmt struct {
	Database string
}

func (*CreateTableStmt) stmt() {}
func (*DropTableStmt) stmt()   {}
func (*InsertStmt) stmt()      {}
func (*SelectStmt) stmt()      {}
func (*DeleteStmt) stmt()      {}
func (*UseStmt) stmt()         {}
