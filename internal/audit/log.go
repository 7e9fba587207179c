package audit

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// GenesisHash is the prev_hash the first entry chains from.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrNoKey is returned when a Log is opened without a MAC key.
var ErrNoKey = errors.New("audit: MAC key is required")

// Log is an append-only JSONL audit log with keyed hash chaining. Each
// entry's MAC covers the previous entry's MAC and the entry's own payload,
// so the chain cannot be forged or silently rewritten without the key.
//
// Append is the single serialization point: sequence assignment and MAC
// computation happen as one atomic step under the mutex. Callers must not
// hold this lock across tool execution — only the append itself is guarded.
type Log struct {
	path     string
	file     *os.File
	key      []byte
	prevHash string
	nextSeq  uint64
	mu       sync.Mutex
}

// Open opens (or creates) an audit log for appending with the given MAC
// key. If the file already exists, the chain tail and next sequence number
// are recovered from its last line.
func Open(path string, key []byte) (*Log, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	prevHash := GenesisHash
	var nextSeq uint64 = 1

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := readLastEntry(path)
		if err != nil {
			return nil, fmt.Errorf("audit: recover chain tail: %w", err)
		}
		if last != nil {
			prevHash = last.Hash
			nextSeq = last.Seq + 1
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}

	return &Log{
		path:     path,
		file:     file,
		key:      key,
		prevHash: prevHash,
		nextSeq:  nextSeq,
	}, nil
}

// Append assigns the next sequence number, computes the chain MAC, writes
// the entry, and syncs to disk. It returns the assigned sequence number.
// Safe for concurrent callers: two appends can never observe the same
// (prev_hash, seq) pair.
func (l *Log) Append(entry Entry) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.Seq = l.nextSeq
	entry.PrevHash = l.prevHash
	entry.Hash = ""

	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("audit: marshal entry: %w", err)
	}
	entry.Hash = chainMAC(l.key, entry.PrevHash, payload)

	line, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("audit: marshal entry: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return 0, fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return 0, fmt.Errorf("audit: sync: %w", err)
	}

	l.prevHash = entry.Hash
	l.nextSeq++
	return entry.Seq, nil
}

// Path returns the log's file path.
func (l *Log) Path() string {
	return l.path
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// chainMAC computes hex(HMAC-SHA256(key, prevHash || payload)), binding
// the entry to both its predecessor and the process-wide secret.
func chainMAC(key []byte, prevHash string, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(prevHash))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// entryMAC recomputes the MAC for a parsed entry from scratch.
func entryMAC(key []byte, e Entry) (string, error) {
	stored := e
	stored.Hash = ""
	payload, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}
	return chainMAC(key, e.PrevHash, payload), nil
}

// readLastEntry returns the last parseable line of the log, or nil for an
// empty file.
func readLastEntry(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if s := strings.TrimSpace(scanner.Text()); s != "" {
			lastLine = s
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if lastLine == "" {
		return nil, nil
	}

	var e Entry
	if err := json.Unmarshal([]byte(lastLine), &e); err != nil {
		return nil, fmt.Errorf("parse last line: %w", err)
	}
	return &e, nil
}

// maxLineBytes bounds a single audit line; tool detail is truncated by the
// gateway well below this.
const maxLineBytes = 1 << 20
