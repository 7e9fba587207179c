package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ReadRange returns entries with from ≤ seq ≤ to in sequence order. A from
// of 0 means from the first entry; a to of 0 means no upper bound. This is
// the read-only export surface for external auditors — it never mutates
// the log and does not require the MAC key (use Verify for integrity).
func ReadRange(path string, from, to uint64) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	if from == 0 {
		from = 1
	}

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("audit: parse entry: %w", err)
		}
		if e.Seq < from {
			continue
		}
		if to != 0 && e.Seq > to {
			break
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}
	return entries, nil
}

// Tail returns the last n entries of the log.
func Tail(path string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	last, err := readLastEntry(path)
	if err != nil || last == nil {
		return nil, err
	}
	from := uint64(1)
	if last.Seq > uint64(n) {
		from = last.Seq - uint64(n) + 1
	}
	return ReadRange(path, from, last.Seq)
}
