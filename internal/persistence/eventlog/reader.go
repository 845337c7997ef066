package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"wiregrid.ai/internal/sim/world"
)

// Files lists the journal files in dir, oldest first. The hour stamp in the
// name sorts lexically.
func Files(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadDir streams every journal entry under dir to fn in file order. A
// non-nil error from fn stops the walk and is returned.
func ReadDir(dir string, fn func(path string, e world.JournalEntry) error) error {
	files, err := Files(dir)
	if err != nil {
		return err
	}
	for _, p := range files {
		if err := readFile(p, fn); err != nil {
			return err
		}
	}
	return nil
}

func readFile(path string, fn func(path string, e world.JournalEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e world.JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(path, e); err != nil {
			return err
		}
	}
	return sc.Err()
}
