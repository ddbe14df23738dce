package sql

import "testing"

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE orders (id INT, customer STRING, total FLOAT, PRIMARY KEY(id));`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ct, ok := stmt.(*CreateTableStmt)
	if !ok {
		t.Fatalf("got %T, want *CreateTableStmt", stmt)
	}
	if ct.Table != "orders" || ct.PrimaryKey != "id" || len(ct.Columns) != 3 {
		t.Fatalf("unexpected parse result: %+v", ct)
	}
}

func TestParseCreateTableWithoutPrimaryKeyFails(t *testing.T) {
	if _, err := Parse(`CREATE TABLE orders (id INT);`); err == nil {
		t.Fatal("expected an error for a missing PRIMARY KEY clause")
	}
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse(`INSERT INTO orders (id, customer) VALUES (1, 'alice');`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ins, ok := stmt.(*InsertStmt)
	if !ok {
		t.Fatalf("got %T, want *InsertStmt", stmt)
	}
	if len(ins.Columns) != 2 || len(ins.Values) != 2 {
		t.Fatalf("unexpected parse result: %+v", ins)
	}
}

func TestParseSelectWithEqualityWhere(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM orders WHERE id = 1;`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel, ok := stmt.(*SelectStmt)
	if !ok {
		t.Fatalf("got %T, want *SelectStmt", stmt)
	}
	if sel.Where == nil || sel.Where.Op != PredEq {
		t.Fatalf("expected an equality predicate, got %+v", sel.Where)
	}
}

func TestParseSelectWithPrefixLike(t *testing.T) {
	stmt, err := Parse(`SELECT * FROM orders WHERE id LIKE 'ord-%';`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sel := stmt.(*SelectStmt)
	if sel.Where.Op != PredLikePrefix || sel.Where.Prefix != "ord-" {
		t.Fatalf("unexpected predicate: %+v", sel.Where)
	}
}

func TestParseSelectRejectsNonPrefixPattern(t *testing.T) {
	if _, err := Parse(`SELECT * FROM orders WHERE id LIKE '%ord';`); err == nil {
		t.Fatal("expected a parse error for a non-prefix LIKE pattern")
	}
}

func TestParseSelectRejectsNonEqualityComparison(t *testing.T) {
	if _, err := Parse(`SELECT * FROM orders WHERE id > 1;`); err == nil {
		t.Fatal("expected a parse error for an unsupported comparison operator")
	}
}

func TestParseDeleteRequiresWhere(t *testing.T) {
	if _, err := Parse(`DELETE FROM orders;`); err == nil {
		t.Fatal("expected an error for DELETE without WHERE")
	}
}

func TestParseUse(t *testing.T) {
	stmt, err := Parse(`USE shop`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	use, ok := stmt.(*UseStmt)
	if !ok || use.Database != "shop" {
		t.Fatalf("unexpected parse result: %+v", stmt)
	}
}

func TestParseDropTable(t *testing.T) {
	stmt, err := Parse(`DROP TABLE orders`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	drop, ok := stmt.(*DropTableStmt)
	if !ok || drop.Table != "orders" {
		t.Fatalf("unexpected parse result: %+v", stmt)
	}
}
