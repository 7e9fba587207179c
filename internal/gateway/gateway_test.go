package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pkamenev/toolgate/internal/audit"
	"github.com/pkamenev/toolgate/internal/confirm"
	"github.com/pkamenev/toolgate/internal/model"
	"github.com/pkamenev/toolgate/internal/session"
	"github.com/pkamenev/toolgate/internal/tools"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// fakeIdentity backs both credential checks and role resolution.
type fakeIdentity struct {
	passwords map[string]string
	roles     map[string]model.Role
}

func (f *fakeIdentity) VerifyCredentials(_ context.Context, id, password string) (model.Role, error) {
	if f.passwords[id] != password || password == "" {
		return "", errors.New("invalid credentials")
	}
	return f.roles[id], nil
}

func (f *fakeIdentity) GetRole(_ context.Context, id string) (string, error) {
	role, ok := f.roles[id]
	if !ok {
		return "", errors.New("unknown user")
	}
	return string(role), nil
}

// stubTool returns canned output for a capability.
type stubTool struct {
	capability model.Capability
	output     string
	err        error
	calls      int
}

func (s *stubTool) Capability() model.Capability { return s.capability }

func (s *stubTool) Invoke(_ context.Context, _ map[string]string) (string, error) {
	s.calls++
	return s.output, s.err
}

type fixture struct {
	gw        *Gateway
	ids       *fakeIdentity
	sessions  *session.Manager
	log       *audit.Log
	logPath   string
	listProcs *stubTool
	elevate   *stubTool
}

func newFixture(t *testing.T, confirmTTL time.Duration) *fixture {
	t.Helper()

	ids := &fakeIdentity{
		passwords: map[string]string{"alice": "alice-pw", "bob": "bob-pw", "root": "root-pw"},
		roles: map[string]model.Role{
			"alice": model.RoleViewer,
			"bob":   model.RoleOperator,
			"root":  model.RoleAdmin,
		},
	}
	sessions := session.NewManager(ids, session.DefaultLimits)

	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := audit.Open(logPath, testKey)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	listProcs := &stubTool{capability: model.CapListProcesses, output: "PID COMM\n1 init"}
	elevate := &stubTool{capability: model.CapElevate, output: "service restarted"}
	registry := tools.NewRegistry(listProcs, elevate)

	gw := New(ids, sessions, confirm.NewStore(confirmTTL), registry, log)
	return &fixture{
		gw:        gw,
		ids:       ids,
		sessions:  sessions,
		log:       log,
		logPath:   logPath,
		listProcs: listProcs,
		elevate:   elevate,
	}
}

func (f *fixture) login(t *testing.T, user, password string) string {
	t.Helper()
	token, err := f.gw.Login(context.Background(), user, password)
	if err != nil {
		t.Fatalf("Login %s: %v", user, err)
	}
	return token
}

func (f *fixture) entries(t *testing.T) []audit.Entry {
	t.Helper()
	entries, err := audit.ReadRange(f.logPath, 0, 0)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	return entries
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	if _, err := f.gw.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestInvokeAllowed(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "alice", "alice-pw")

	resp, err := f.gw.Invoke(context.Background(), token, model.CapListProcesses, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusSuccess {
		t.Fatalf("status = %s, reason = %s", resp.Status, resp.Reason)
	}
	if resp.Output != "PID COMM\n1 init" {
		t.Fatalf("output = %q", resp.Output)
	}

	entries := f.entries(t)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Actor != "alice" || e.Capability != "list_processes" ||
		e.Decision != string(model.OutcomeAllowed) || e.Result.Status != "succeeded" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestInvokeDeniedOutsideRole(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "alice", "alice-pw") // viewer

	resp, err := f.gw.Invoke(context.Background(), token, model.CapLaunchApp, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusDenied {
		t.Fatalf("status = %s", resp.Status)
	}

	entries := f.entries(t)
	if len(entries) != 1 || entries[0].Decision != string(model.OutcomeDenied) {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestInvokeInvalidSession(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)

	resp, err := f.gw.Invoke(context.Background(), "sess-bogus", model.CapListProcesses, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusDenied {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Reason != "unknown session" {
		t.Fatalf("reason = %q", resp.Reason)
	}

	entries := f.entries(t)
	if len(entries) != 1 || entries[0].Actor != "unknown" {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestExpiredSessionDeniedAsExpired(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	short := session.NewManager(f.ids, session.Limits{MaxAge: time.Hour, IdleTimeout: 10 * time.Millisecond})
	gw := New(f.ids, short, confirm.NewStore(confirm.DefaultTTL), tools.NewRegistry(f.listProcs), f.log)

	token, err := gw.Login(context.Background(), "alice", "alice-pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	resp, err := gw.Invoke(context.Background(), token, model.CapListProcesses, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusDenied || resp.Reason != "session expired" {
		t.Fatalf("resp = %+v, want denied with an expiry reason", resp)
	}
}

func TestInvokeUnknownCapability(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "root", "root-pw")

	resp, err := f.gw.Invoke(context.Background(), token, model.Capability("wipe_disk"), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusDenied {
		t.Fatalf("status = %s", resp.Status)
	}
	if len(f.entries(t)) != 1 {
		t.Fatal("denial must be audited")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "alice", "alice-pw")

	f.gw.Logout(token)
	resp, err := f.gw.Invoke(context.Background(), token, model.CapListProcesses, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusDenied {
		t.Fatalf("status = %s", resp.Status)
	}
	// A revoked token must read like one that never existed.
	if resp.Reason != "unknown session" {
		t.Fatalf("reason = %q", resp.Reason)
	}
}

func TestHighSensitivityRequiresConfirmation(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "bob", "bob-pw") // operator

	resp, err := f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusConfirmation || resp.ChallengeID == "" {
		t.Fatalf("resp = %+v", resp)
	}
	if f.elevate.calls != 0 {
		t.Fatal("tool ran before confirmation")
	}
	// The invocation is still open: no audit entry yet.
	if n := len(f.entries(t)); n != 0 {
		t.Fatalf("audit entries = %d, want 0", n)
	}

	confirmed, err := f.gw.Confirm(context.Background(), resp.ChallengeID, confirm.Phrase)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != StatusSuccess || confirmed.Output != "service restarted" {
		t.Fatalf("confirmed = %+v", confirmed)
	}
	if f.elevate.calls != 1 {
		t.Fatalf("tool calls = %d, want 1", f.elevate.calls)
	}

	entries := f.entries(t)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Decision != string(model.OutcomeAllowedAfterConfirm) {
		t.Fatalf("decision = %s", entries[0].Decision)
	}
}

func TestAdminAlsoNeedsConfirmation(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "root", "root-pw")

	resp, err := f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusConfirmation {
		t.Fatalf("status = %s; high sensitivity must not be waved through for admin", resp.Status)
	}
}

func TestConfirmWrongPhrase(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "bob", "bob-pw")

	resp, _ := f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})

	for _, phrase := range []string{"i authorize", "I AUTHORIZE ", "yes", ""} {
		// Only the first attempt finds the challenge; it is consumed on
		// the spot, so retrying with the right phrase cannot help.
		denied, err := f.gw.Confirm(context.Background(), resp.ChallengeID, phrase)
		if err != nil {
			t.Fatalf("Confirm(%q): %v", phrase, err)
		}
		if denied.Status != StatusDenied {
			t.Fatalf("Confirm(%q) status = %s", phrase, denied.Status)
		}
	}
	if f.elevate.calls != 0 {
		t.Fatal("tool ran without valid confirmation")
	}
	entries := f.entries(t)
	if len(entries) != 1 || entries[0].Decision != string(model.OutcomeDenied) {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestConfirmIsSingleUse(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "bob", "bob-pw")

	resp, _ := f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})

	if _, err := f.gw.Confirm(context.Background(), resp.ChallengeID, confirm.Phrase); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	second, err := f.gw.Confirm(context.Background(), resp.ChallengeID, confirm.Phrase)
	if err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if second.Status != StatusDenied {
		t.Fatalf("second confirm status = %s", second.Status)
	}
	if f.elevate.calls != 1 {
		t.Fatalf("tool calls = %d, want 1", f.elevate.calls)
	}
	// Replay does not add an entry: the invocation was already closed.
	if n := len(f.entries(t)); n != 1 {
		t.Fatalf("audit entries = %d, want 1", n)
	}
}

func TestConfirmExpiredWindow(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	token := f.login(t, "bob", "bob-pw")

	resp, _ := f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})

	time.Sleep(25 * time.Millisecond)
	denied, err := f.gw.Confirm(context.Background(), resp.ChallengeID, confirm.Phrase)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if denied.Status != StatusDenied {
		t.Fatalf("status = %s", denied.Status)
	}
	entries := f.entries(t)
	if len(entries) != 1 || entries[0].Decision != string(model.OutcomeDenied) {
		t.Fatalf("entries = %+v", entries)
	}
	if f.elevate.calls != 0 {
		t.Fatal("tool ran after the window closed")
	}
}

func TestConfirmAfterRoleDowngrade(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "bob", "bob-pw")

	resp, _ := f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})

	// Demote bob while the challenge is pending. The fresh role decides.
	f.ids.roles["bob"] = model.RoleViewer
	denied, err := f.gw.Confirm(context.Background(), resp.ChallengeID, confirm.Phrase)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if denied.Status != StatusDenied {
		t.Fatalf("status = %s", denied.Status)
	}
	if f.elevate.calls != 0 {
		t.Fatal("tool ran for a downgraded role")
	}
}

func TestConfirmAfterSessionRevoked(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "bob", "bob-pw")

	resp, _ := f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})

	f.sessions.End(token)
	denied, err := f.gw.Confirm(context.Background(), resp.ChallengeID, confirm.Phrase)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if denied.Status != StatusDenied {
		t.Fatalf("status = %s", denied.Status)
	}
	entries := f.entries(t)
	if len(entries) != 1 || entries[0].Decision != string(model.OutcomeDenied) {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestToolFailureIsAuditedAsAllowed(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "alice", "alice-pw")

	f.listProcs.err = errors.New("ps: command not found")
	resp, err := f.gw.Invoke(context.Background(), token, model.CapListProcesses, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != StatusFailure {
		t.Fatalf("status = %s", resp.Status)
	}

	entries := f.entries(t)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	// The invocation was authorized; only the tool failed.
	if entries[0].Decision != string(model.OutcomeAllowed) || entries[0].Result.Status != "failed" {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func TestAuditFailureWithholdsOutput(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	token := f.login(t, "alice", "alice-pw")

	// Closing the log makes the next append fail.
	f.log.Close()
	resp, err := f.gw.Invoke(context.Background(), token, model.CapListProcesses, nil)
	if err == nil {
		t.Fatalf("expected infrastructure error, got resp = %+v", resp)
	}
	if resp != nil {
		t.Fatal("no response may escape when the audit write fails")
	}
}

func TestSweepExpiredAuditsAbandonedChallenges(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	token := f.login(t, "bob", "bob-pw")

	f.gw.Invoke(context.Background(), token, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})
	time.Sleep(25 * time.Millisecond)

	n, err := f.gw.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	entries := f.entries(t)
	if len(entries) != 1 || entries[0].Decision != string(model.OutcomeDenied) {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Actor != "bob" {
		t.Fatalf("actor = %s, want bob", entries[0].Actor)
	}
}

func TestSweepRetriesChallengesAfterAuditFailure(t *testing.T) {
	f := newFixture(t, 10*time.Millisecond)
	token := f.login(t, "bob", "bob-pw")

	for i := 0; i < 2; i++ {
		resp, err := f.gw.Invoke(context.Background(), token, model.CapElevate,
			map[string]string{"command": "systemctl restart nginx"})
		if err != nil || resp.Status != StatusConfirmation {
			t.Fatalf("Invoke %d: resp = %+v, err = %v", i, resp, err)
		}
	}
	time.Sleep(25 * time.Millisecond)

	f.log.Close()
	n, err := f.gw.SweepExpired(context.Background())
	if err == nil {
		t.Fatal("expected sweep failure against a closed log")
	}
	if n != 0 {
		t.Fatalf("swept = %d, want 0", n)
	}
	// Nothing written, so nothing lost: both challenges await the retry.
	if pending := f.gw.challenges.Pending(); pending != 2 {
		t.Fatalf("pending = %d, want 2", pending)
	}

	log2, err := audit.Open(f.logPath, testKey)
	if err != nil {
		t.Fatalf("reopen audit log: %v", err)
	}
	t.Cleanup(func() { log2.Close() })
	gw2 := New(f.ids, f.sessions, f.gw.challenges, tools.NewRegistry(f.elevate), log2)

	n, err = gw2.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("retry sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("swept = %d, want 2", n)
	}
	entries, err := audit.ReadRange(f.logPath, 0, 0)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Decision != string(model.OutcomeDenied) {
			t.Fatalf("entry = %+v", e)
		}
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 4) // two bytes per rune

	got := truncate(s, 3)
	if got != "é…" {
		t.Fatalf("truncate(%q, 3) = %q", s, got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated detail is not valid UTF-8: %q", got)
	}

	// A cut that already lands on a rune boundary is not moved.
	if got := truncate(s, 4); got != "éé…" {
		t.Fatalf("truncate(%q, 4) = %q", s, got)
	}
	if got := truncate("abc", 3); got != "abc" {
		t.Fatalf("short strings pass through, got %q", got)
	}
}

func TestChainStaysValidAcrossMixedTraffic(t *testing.T) {
	f := newFixture(t, confirm.DefaultTTL)
	viewer := f.login(t, "alice", "alice-pw")
	operator := f.login(t, "bob", "bob-pw")

	f.gw.Invoke(context.Background(), viewer, model.CapListProcesses, nil)
	f.gw.Invoke(context.Background(), viewer, model.CapLaunchApp, nil) // denied
	resp, _ := f.gw.Invoke(context.Background(), operator, model.CapElevate,
		map[string]string{"command": "systemctl restart nginx"})
	f.gw.Confirm(context.Background(), resp.ChallengeID, confirm.Phrase)
	f.gw.Invoke(context.Background(), "sess-bogus", model.CapReadFile, nil) // denied, unknown actor

	result := audit.Verify(f.logPath, testKey)
	if !result.Valid || result.Entries != 4 {
		t.Fatalf("result = %+v", result)
	}
}
