package persistence

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.journal")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	records := []struct {
		name string
		args [][]byte
	}{
		{CmdNode, [][]byte{[]byte("Gene"), []byte("CYP2C9"), []byte(`{"chromosome":"10"}`)}},
		{CmdEdge, [][]byte{[]byte("AFFECTS"), []byte("chr10:94761930:G>A"), []byte("warfarin"), []byte(`{}`), []byte(`["PMID:100"]`)}},
		{CmdAnnot, [][]byte{[]byte("chr10:94761930:G>A"), []byte("[{\"source\":\"gnomad\"}\n]")}},
	}
	for _, r := range records {
		if err := w.Append(FormatCommand(r.name, r.args...)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rd := NewReader(f)
	for i, want := range records {
		cmd, err := rd.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if cmd.Name != want.name {
			t.Errorf("record %d: name = %q, want %q", i, cmd.Name, want.name)
		}
		if !reflect.DeepEqual(cmd.Args, want.args) {
			t.Errorf("record %d: args mismatch\n got %q\nwant %q", i, cmd.Args, want.args)
		}
	}
	if _, err := rd.Next(); err != io.EOF {
		t.Errorf("expected clean EOF, got %v", err)
	}
}

func TestJournalTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.journal")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(FormatCommand(CmdNode, []byte("Gene"), []byte("CYP2C9"), []byte("{}"))); err != nil {
		t.Fatal(err)
	}
	if err := w.Append(FormatCommand(CmdNode, []byte("Drug"), []byte("warfarin"), []byte("{}"))); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Chop the last record mid-frame, as a crash during append would.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-7], 0666); err != nil {
		t.Fatal(err)
	}

	f, _ := os.Open(path)
	defer f.Close()
	rd := NewReader(f)
	if _, err := rd.Next(); err != nil {
		t.Fatalf("intact first record unreadable: %v", err)
	}
	if _, err := rd.Next(); !errors.Is(err, ErrIncompleteFrame) {
		t.Errorf("truncated tail: err = %v, want ErrIncompleteFrame", err)
	}
}

func TestJournalDetectsCorruption(t *testing.T) {
	record := FormatCommand(CmdNode, []byte("Gene"), []byte("CYP2C9"), []byte("{}"))
	var buf bytes.Buffer
	if err := NewFrameWriter(&buf).WriteFrame([]byte(record)); err != nil {
		t.Fatal(err)
	}

	// Flip a payload byte past the header.
	data := buf.Bytes()
	data[HeaderSize+2] ^= 0xFF

	rd := NewReader(bytes.NewReader(data))
	if _, err := rd.Next(); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("corrupted payload: err = %v, want ErrChecksumMismatch", err)
	}
}

func TestLazyWriterFlushOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.journal")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	lw := NewLazyWriter(w, 0, 0, 0)
	for i := 0; i < 10; i++ {
		if err := lw.Append(FormatCommand(CmdNode, []byte("Gene"), []byte("G"), []byte("{}"))); err != nil {
			t.Fatal(err)
		}
	}
	if err := lw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := lw.Append("x"); err == nil {
		t.Error("append after Close should fail")
	}

	f, _ := os.Open(path)
	defer f.Close()
	rd := NewReader(f)
	n := 0
	for {
		if _, err := rd.Next(); err != nil {
			break
		}
		n++
	}
	if n != 10 {
		t.Errorf("replayed %d records, want 10", n)
	}
}
