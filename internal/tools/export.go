package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkamenev/toolgate/internal/audit"
	"github.com/pkamenev/toolgate/internal/model"
)

// ExportAudit verifies the audit chain and returns a range of entries
// as JSON. Export refuses to serve a chain that fails verification:
// a tampered log should be investigated, not exported.
type ExportAudit struct {
	Path string
	Key  []byte
}

func (ExportAudit) Capability() model.Capability { return model.CapExportAudit }

func (t ExportAudit) Invoke(_ context.Context, params map[string]string) (string, error) {
	from, err := parseSeq(params["from"])
	if err != nil {
		return "", fmt.Errorf("tools: parse from: %w", err)
	}
	to, err := parseSeq(params["to"])
	if err != nil {
		return "", fmt.Errorf("tools: parse to: %w", err)
	}

	result := audit.Verify(t.Path, t.Key)
	if !result.Valid {
		return "", fmt.Errorf("tools: audit chain invalid at seq %d: %s", result.Seq, result.Error)
	}

	entries, err := audit.ReadRange(t.Path, from, to)
	if err != nil {
		return "", fmt.Errorf("tools: read audit range: %w", err)
	}

	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", fmt.Errorf("tools: encode entry: %w", err)
		}
	}
	return b.String(), nil
}

func parseSeq(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}
