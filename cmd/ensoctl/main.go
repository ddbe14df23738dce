// Command ensoctl is the REPL client: with -addr it dials an ensod
// instance's line-oriented TCP protocol; without it, it embeds an
// engine directly and runs the same statements in-process.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"

	"github.com/ensodb/enso/internal/authz"
	"github.com/ensodb/enso/internal/engine"
	"github.com/ensodb/enso/internal/schema"
	"github.com/ensodb/enso/internal/shell"
	"github.com/ensodb/enso/internal/sql"
)

func main() {
	addr := flag.String("addr", "", "ensod TCP address to connect to; empty runs an embedded session")
	dataDir := flag.String("data", "./data", "data directory root (embedded mode only)")
	subject := flag.String("user", "anonymous", "AUTH subject")
	flag.Parse()

	if *addr != "" {
		if err := runRemote(*addr, *subject); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := runEmbedded(*dataDir, *subject); err != nil {
		log.Fatal(err)
	}
}

func runEmbedded(dataDir, subject string) error {
	eng, err := engine.Open(engine.Config{Dir: filepath.Join(dataDir, "engine")})
	if err != nil {
		return err
	}
	defer eng.Close()

	sm, err := schema.Open(filepath.Join(dataDir, "schema"))
	if err != nil {
		return err
	}
	az, err := authz.Open()
	if err != nil {
		return err
	}

	ex := sql.NewExecutor(eng, sm, az)
	return shell.New(ex, sm, subject).Run()
}

// runRemote is a minimal line-oriented client: it reads statements from
// stdin, writes them to conn, and prints everything up to the
// <ENSO_EOF> sentinel.
func runRemote(addr, subject string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	fmt.Fprintf(conn, "AUTH %s\n", subject)
	if _, err := readUntilSentinel(reader); err != nil {
		return err
	}

	stdin := bufio.NewScanner(os.Stdin)
	fmt.Print("enso> ")
	for stdin.Scan() {
		line := stdin.Text()
		if line == `\q` {
			return nil
		}
		fmt.Fprintln(conn, line)
		resp, err := readUntilSentinel(reader)
		if err != nil {
			return err
		}
		fmt.Println(resp)
		fmt.Print("enso> ")
	}
	return stdin.Err()
}

func readUntilSentinel(reader *bufio.Reader) (string, error) {
	const sentinel = "<ENSO_EOF>"
	var out []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		trimmed := line[:len(line)-1]
		if trimmed == sentinel {
			break
		}
		out = append(out, line...)
	}
	return string(out), nil
}
