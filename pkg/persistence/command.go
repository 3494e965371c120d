// Package persistence implements the append-only journal of graph
// mutations and its wire format.
//
// Journal records use a subset of the RESP (Redis Serialization
// Protocol) framing: an array header followed by length-prefixed bulk
// strings. The framing is binary-safe, so JSON payloads with embedded
// newlines survive a replay untouched.
package persistence

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Journal command names. Each corresponds to one idempotent mutation of
// the graph, so replaying a journal in order reconstructs the state and
// replaying it twice is harmless.
const (
	// CmdNode: NODE <type> <key> <attrs-json>
	CmdNode = "NODE"
	// CmdEdge: EDGE <type> <from> <to> <attrs-json> <studies-json>
	CmdEdge = "EDGE"
	// CmdAnnot: ANNOT <variant-key> <fragments-json>
	CmdAnnot = "ANNOT"
)

// Command is one parsed journal record.
type Command struct {
	Name string
	// Args holds the record payload as byte slices to stay binary-safe.
	Args [][]byte
}

// FormatCommand renders a command into its RESP framing.
// A nil argument is written as a RESP null bulk string.
func FormatCommand(name string, args ...[]byte) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("*%d\r\n", 1+len(args)))
	b.WriteString(fmt.Sprintf("$%d\r\n%s\r\n", len(name), name))
	for _, arg := range args {
		if arg == nil {
			b.WriteString("$-1\r\n")
		} else {
			b.WriteString(fmt.Sprintf("$%d\r\n%s\r\n", len(arg), string(arg)))
		}
	}
	return b.String()
}

// ParseCommand reads one framed command from the reader. It returns
// io.EOF at a clean end of the journal.
func ParseCommand(reader *bufio.Reader) (*Command, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}

	line = strings.TrimSpace(line)
	if line == "" || line[0] != '*' {
		return nil, fmt.Errorf("invalid record header, expected '*'")
	}

	numArgs, err := strconv.Atoi(line[1:])
	if err != nil || numArgs <= 0 {
		return nil, fmt.Errorf("invalid record arity %q", line[1:])
	}

	args := make([][]byte, numArgs)
	for i := 0; i < numArgs; i++ {
		line, err = reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("truncated record: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '$' {
			return nil, fmt.Errorf("invalid bulk header, expected '$'")
		}

		argLen, err := strconv.Atoi(line[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid bulk length %q", line[1:])
		}
		if argLen < 0 { // null bulk string
			args[i] = nil
			continue
		}

		data := make([]byte, argLen)
		if _, err := io.ReadFull(reader, data); err != nil {
			return nil, fmt.Errorf("truncated bulk payload: %w", err)
		}
		crlf := make([]byte, 2)
		if _, err := io.ReadFull(reader, crlf); err != nil {
			return nil, fmt.Errorf("truncated bulk terminator: %w", err)
		}
		args[i] = data
	}

	return &Command{
		Name: strings.ToUpper(string(args[0])),
		Args: args[1:],
	}, nil
}
