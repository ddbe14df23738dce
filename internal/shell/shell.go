// Package shell is an interactive REPL over the same engine and SQL
// executor the network listener uses, built the way memcp's own prompt
// loop is: a readline.Instance with history, an interrupt prompt, and a
// loop that prints a result or an error per line.
package shell

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ensodb/enso/internal/rowcodec"
	"github.com/ensodb/enso/internal/schema"
	"github.com/ensodb/enso/internal/sql"
)

const (
	prompt       = "enso> "
	resultPrefix = "=> "
)

// Shell is the embedded REPL: it holds its own Session and talks
// directly to an Executor, with no network hop.
type Shell struct {
	ex   *sql.Executor
	sm   *schema.Manager
	sess *sql.Session
}

func New(ex *sql.Executor, sm *schema.Manager, subject string) *Shell {
	return &Shell{ex: ex, sm: sm, sess: &sql.Session{Subject: subject}}
}

// Run drives the REPL until the user types \q or sends EOF. An
// interrupt (Ctrl-C) at the prompt abandons the current line and the
// loop keeps running.
func (s *Shell) Run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       ".enso-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	rl.CaptureExitSignal()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out, quit := s.HandleLine(line)
		if out != "" {
			fmt.Println(out)
		}
		if quit {
			return nil
		}
	}
}

// HandleLine processes a single line of input and returns what should
// be printed plus whether the shell should exit. Split out from Run so
// the dispatch logic (meta-commands, SQL execution, formatting) can be
// exercised without a real terminal.
func (s *Shell) HandleLine(line string) (output string, quit bool) {
	if line == `\q` {
		return "", true
	}
	if strings.HasPrefix(line, `\d `) {
		return s.describeTable(strings.TrimSpace(strings.TrimPrefix(line, `\d `))), false
	}

	res, err := s.ex.Execute(s.sess, line)
	if err != nil {
		return "ERR " + err.Error(), false
	}
	return resultPrefix + formatResult(res), false
}

func (s *Shell) describeTable(table string) string {
	if s.sess.Database == "" {
		return "ERR no database selected; run USE <db> first"
	}
	t, err := s.sm.LoadTable(s.sess.Database, table)
	if err != nil {
		return "ERR " + err.Error()
	}
	lines := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		marker := ""
		if c.Name == t.PrimaryKey {
			marker = " (primary key)"
		}
		lines[i] = fmt.Sprintf("%s %s%s", c.Name, c.Type, marker)
	}
	return strings.Join(lines, "\n")
}

func formatResult(res *sql.Result) string {
	if res.Status != "" {
		return res.Status
	}
	lines := make([]string, 0, len(res.Rows)+1)
	lines = append(lines, strings.Join(res.Columns, " | "))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = displayValue(v)
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n")
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
