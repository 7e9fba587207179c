package toolgate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeElevation struct {
	commands []string
}

func (f *fakeElevation) RunElevated(_ context.Context, command string) (string, int, error) {
	f.commands = append(f.commands, command)
	return "ok", 0, nil
}

func newTestClient(t *testing.T) (*Client, *fakeElevation, string) {
	t.Helper()
	dir := t.TempDir()

	// Scope the client to the test directory so file tools work.
	scopePath := filepath.Join(dir, "scope.yaml")
	content := "allowed_paths:\n  - " + dir + "\nallowed_apps:\n  - calculator\nblocked_commands:\n  - \"rm -rf /\"\n"
	if err := os.WriteFile(scopePath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeElevation{}
	c, err := New(WithDataDir(dir), WithElevationRunner(runner))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.CreateUser(context.Background(), "alice", "alice-pw", "operator"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return c, runner, dir
}

func TestEndToEndReadFile(t *testing.T) {
	c, _, dir := newTestClient(t)
	ctx := context.Background()

	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("remember the milk"), 0644); err != nil {
		t.Fatal(err)
	}

	token, err := c.Login(ctx, "alice", "alice-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	resp, err := c.Invoke(ctx, token, "read_file", map[string]string{"path": path})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusSuccess || resp.Output != "remember the milk" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestEndToEndConfirmation(t *testing.T) {
	c, runner, _ := newTestClient(t)
	ctx := context.Background()

	token, err := c.Login(ctx, "alice", "alice-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	resp, err := c.Invoke(ctx, token, "elevate", map[string]string{"command": "systemctl restart nginx"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusConfirmation || resp.ChallengeID == "" {
		t.Fatalf("resp = %+v", resp)
	}

	confirmed, err := c.Confirm(ctx, resp.ChallengeID, ConfirmPhrase)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != StatusSuccess || confirmed.Output != "ok" {
		t.Fatalf("confirmed = %+v", confirmed)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "systemctl restart nginx" {
		t.Fatalf("commands = %v", runner.commands)
	}
}

func TestRoleChangeAppliesToLiveSession(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	token, _ := c.Login(ctx, "alice", "alice-pw")

	resp, err := c.Invoke(ctx, token, "launch_app", map[string]string{"app": "calculator"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	// launch_app fails without a real app, but it was authorized.
	if resp.Status == StatusDenied {
		t.Fatalf("operator should be authorized: %+v", resp)
	}

	if err := c.SetRole(ctx, "alice", "viewer"); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	resp, err = c.Invoke(ctx, token, "launch_app", map[string]string{"app": "calculator"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusDenied {
		t.Fatalf("downgraded role must be denied, got %+v", resp)
	}
}

func TestAuditChainCoversEverything(t *testing.T) {
	c, _, dir := newTestClient(t)
	ctx := context.Background()

	path := filepath.Join(dir, "f.txt")
	os.WriteFile(path, []byte("x"), 0644)

	token, _ := c.Login(ctx, "alice", "alice-pw")
	c.Invoke(ctx, token, "read_file", map[string]string{"path": path})
	c.Invoke(ctx, token, "export_audit", nil) // denied for operator
	c.Invoke(ctx, "sess-bogus", "read_file", nil)

	result := c.VerifyAudit()
	if !result.Valid || result.Entries != 3 {
		t.Fatalf("result = %+v", result)
	}
}

func TestRevokeUser(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	token, _ := c.Login(ctx, "alice", "alice-pw")
	if n := c.RevokeUser("alice"); n != 1 {
		t.Fatalf("RevokeUser = %d, want 1", n)
	}

	resp, err := c.Invoke(ctx, token, "list_processes", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusDenied || !strings.Contains(resp.Reason, "session") {
		t.Fatalf("resp = %+v", resp)
	}
}
