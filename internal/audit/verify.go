package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult holds the outcome of a full-chain verification.
// When Valid is false, Seq is the sequence number of the earliest entry
// that failed (0 if the failing line could not be parsed at all) and Line
// is its 1-based line number.
type VerifyResult struct {
	Valid   bool   `json:"valid"`
	Entries int    `json:"entries"`
	Seq     uint64 `json:"seq,omitempty"`
	Line    int    `json:"line,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Verify replays the entire log file, recomputing every entry's MAC from
// scratch and checking sequence continuity. It scans to completion so
// Entries always reflects the full file, and reports the earliest failure
// position: a recomputed-MAC mismatch, a prev_hash break, a sequence gap
// or duplicate, or an unparseable line. An absent or empty log is valid.
func Verify(path string, key []byte) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return VerifyResult{Valid: true}
		}
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	var (
		result   VerifyResult
		failed   bool
		prevHash = GenesisHash
		wantSeq  uint64 = 1
		lineNum  int
	)

	fail := func(seq uint64, line int, format string, args ...any) {
		if failed {
			return
		}
		failed = true
		result.Seq = seq
		result.Line = line
		result.Error = fmt.Sprintf(format, args...)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		result.Entries++

		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			fail(0, lineNum, "parse error: %v", err)
			continue
		}

		if failed {
			continue
		}

		if e.Seq != wantSeq {
			if wantSeq > 1 && e.Seq == wantSeq-1 {
				fail(e.Seq, lineNum, "duplicate sequence number %d", e.Seq)
			} else {
				fail(e.Seq, lineNum, "sequence gap: expected %d, got %d", wantSeq, e.Seq)
			}
			continue
		}

		if e.PrevHash != prevHash {
			fail(e.Seq, lineNum, "chain break: prev_hash does not match entry %d", e.Seq-1)
			continue
		}

		mac, err := entryMAC(key, e)
		if err != nil {
			fail(e.Seq, lineNum, "recompute MAC: %v", err)
			continue
		}
		if e.Hash != mac {
			fail(e.Seq, lineNum, "MAC mismatch at sequence %d", e.Seq)
			continue
		}

		prevHash = e.Hash
		wantSeq++
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Entries: result.Entries, Error: fmt.Sprintf("scan: %v", err)}
	}

	result.Valid = !failed
	return result
}
