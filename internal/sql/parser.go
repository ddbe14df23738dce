package sql

import (
	"strings"

	"github.com/ensodb/enso/internal/ensoerr"
	"github.com/ensodb/enso/internal/rowcodec"
	"github.com/ensodb/enso/internal/schema"
)

// Parser is a recursive-descent parser over the restricted dialect
// described in the front end's design notes: CREATE/DROP TABLE, INSERT,
// SELECT and DELETE with equality or prefix-LIKE WHERE clauses, and USE
// for session database switching.
type Parser struct {
	lexer   *Lexer
	current Token
}

func NewParser(src string) (*Parser, error) {
	p := &Parser{lexer: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	tok, err := p.lexer.Next()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *Parser) expect(k Kind, what string) error {
	if p.current.Kind != k {
		return ensoerr.Parse("expected %s", what)
	}
	return p.advance()
}

func (p *Parser) expectIdent() (string, error) {
	if p.current.Kind != IDENT {
		return "", ensoerr.Parse("expected an identifier")
	}
	name := p.current.Text
	return name, p.advance()
}

// Parse reads exactly one statement from src, ignoring a single
// trailing semicolon if present.
func Parse(src string) (Stmt, error) {
	p, err := NewParser(src)
	if err != nil {
		return nil, err
	}
	return p.parseStmt()
}

func (p *Parser) parseStmt() (Stmt, error) {
	var (
		stmt Stmt
		err  error
	)
	switch p.current.Kind {
	case CREATE:
		stmt, err = p.parseCreate()
	case DROP:
		stmt, err = p.parseDrop()
	case INSERT:
		stmt, err = p.parseInsert()
	case SELECT:
		stmt, err = p.parseSelect()
	case DELETE:
		stmt, err = p.parseDelete()
	case USE:
		stmt, err = p.parseUse()
	default:
		return nil, ensoerr.Parse("unsupported statement")
	}
	if err != nil {
		return nil, err
	}
	if p.current.Kind == SEMICOLON {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.current.Kind != EOF {
		return nil, ensoerr.Parse("unexpected input after end of statement")
	}
	return stmt, nil
}

func columnType(ident string) (schema.ColumnType, error) {
	switch strings.ToUpper(ident) {
	case "INT":
		return schema.TypeInt, nil
	case "FLOAT":
		return schema.TypeFloat, nil
	case "BOOL":
		return schema.TypeBool, nil
	case "STRING":
		return schema.TypeString, nil
	default:
		return "", ensoerr.Parse("unknown column type %q", ident)
	}
}

func (p *Parser) parseCreate() (Stmt, error) {
	if err := p.expect(CREATE, "CREATE"); err != nil {
		return nil, err
	}
	if err := p.expect(TABLE, "TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expect(LPAREN, "'('"); err != nil {
		return nil, err
	}

	var columns []ColumnDef
	var primaryKey string

	for {
		if p.current.Kind == PRIMARY {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expect(KEY, "KEY"); err != nil {
				return nil, err
			}
			if err := p.expect(LPAREN, "'('"); err != nil {
				return nil, err
			}
			pk, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expect(RPAREN, "')'"); err != nil {
				return nil, err
			}
			primaryKey = pk
		} else {
			colName, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if p.current.Kind != IDENT {
				return nil, ensoerr.Parse("expected a column type for %q", colName)
			}
			typ, err := columnType(p.current.Text)
			if err != nil {
				return nil, err
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			columns = append(columns, ColumnDef{Name: colName, Type: typ})
		}

		switch p.current.Kind {
		case COMMA:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case RPAREN:
			if err := p.advance(); err != nil {
				return nil, err
			}
			goto done
		default:
			return nil, ensoerr.Parse("expected ',' or ')' in column list")
		}
	}
done:

	if primaryKey == "" {
		return nil, ensoerr.Parse("CREATE TABLE requires a PRIMARY KEY clause")
	}
	return &CreateTableStmt{Table: table, Columns: columns, PrimaryKey: primaryKey}, nil
}

func (p *Parser) parseDrop() (Stmt, error) {
	if err := p.expect(DROP, "DROP"); err != nil {
		return nil, err
	}
	if err := p.expect(TABLE, "TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &DropTableStmt{Table: table}, nil
}

func (p *Parser) parseUse() (Stmt, error) {
	if err := p.expect(USE, "USE"); err != nil {
		return nil, err
	}
	db, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &UseStmt{Database: db}, nil
}

func (p *Parser) parseInsert() (Stmt, error) {
	if err := p.expect(INSERT, "INSERT"); err != nil {
		return nil, err
	}
	if err := p.expect(INTO, "INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	if err := p.expect(LPAREN, "'('"); err != nil {
		return nil, err
	}
	var columns []string
	for {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		columns = append(columns, name)
		if p.current.Kind == COMMA {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expect(RPAREN, "')'"); err != nil {
		return nil, err
	}

	if err := p.expect(VALUES, "VALUES"); err != nil {
		return nil, err
	}
	if err := p.expect(LPAREN, "'('"); err != nil {
		return nil, err
	}
	var values []rowcodec.Value
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.current.Kind == COMMA {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expect(RPAREN, "')'"); err != nil {
		return nil, err
	}

	if len(columns) != len(values) {
		return nil, ensoerr.Parse("column list has %d entries but VALUES has %d", len(columns), len(values))
	}
	return &InsertStmt{Table: table, Columns: columns, Values: values}, nil
}

func (p *Parser) parseLiteral() (rowcodec.Value, error) {
	switch p.current.Kind {
	case INT:
		v := rowcodec.IntValue(p.current.I)
		return v, p.advance()
	case FLOAT:
		v := rowcodec.FloatValue(p.current.F)
		return v, p.advance()
	case STRING:
		v := rowcodec.StringValue(p.current.Text)
		return v, p.advance()
	case TRUE:
		return rowcodec.BoolValue(true), p.advance()
	case FALSE:
		return rowcodec.BoolValue(false), p.advance()
	case NULL:
		return rowcodec.NullValue(), p.advance()
	default:
		return rowcodec.Value{}, ensoerr.Parse("expected a literal value")
	}
}

func (p *Parser) parseSelect() (Stmt, error) {
	if err := p.expect(SELECT, "SELECT"); err != nil {
		return nil, err
	}

	var columns []string
	if p.current.Kind == STAR {
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else {
		for {
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, name)
			if p.current.Kind == COMMA {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}

	if err := p.expect(FROM, "FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var where *Predicate
	if p.current.Kind == WHERE {
		where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}

	return &SelectStmt{Table: table, Columns: columns, Where: where}, nil
}

func (p *Parser) parseDelete() (Stmt, error) {
	if err := p.expect(DELETE, "DELETE"); err != nil {
		return nil, err
	}
	if err := p.expect(FROM, "FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.current.Kind != WHERE {
		return nil, ensoerr.Parse("DELETE requires a WHERE clause")
	}
	where, err := p.parseWhere()
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{Table: table, Where: where}, nil
}

// parseWhere supports exactly two shapes: `<col> = <literal>` and
// `<col> LIKE '<prefix>%'`. Any other comparison is a Parse error —
// range scans and predicates over non-key columns are out of scope.
func (p *Parser) parseWhere() (*Predicate, error) {
	if err := p.expect(WHERE, "WHERE"); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	switch p.current.Kind {
	case EQ:
		if err := p.advance(); err != nil {
			return nil, err
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return &Predicate{Column: col, Op: PredEq, Eq: lit}, nil
	case LIKE:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.current.Kind != STRING {
			return nil, ensoerr.Parse("LIKE requires a string pattern")
		}
		pattern := p.current.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !strings.HasSuffix(pattern, "%") {
			return nil, ensoerr.Parse("only prefix LIKE patterns ('x%%') are supported")
		}
		return &Predicate{Column: col, Op: PredLikePrefix, Prefix: strings.TrimSuffix(pattern, "%")}, nil
	default:
		return nil, ensoerr.Parse("unsupported WHERE predicate on column %q", col)
	}
}
