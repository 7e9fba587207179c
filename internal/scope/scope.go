// Package scope bounds what tools may touch: which filesystem roots can
// be read, which applications can be launched, which URLs can be
// fetched, and which elevation commands are screened out entirely.
// Scope is orthogonal to authorization: a role may grant a capability
// while scope still rejects the specific target.
package scope

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Rules holds the raw scope configuration as loaded from YAML.
type Rules struct {
	AllowedPaths    []string `yaml:"allowed_paths"`
	AllowedApps     []string `yaml:"allowed_apps"`
	BlockedCommands []string `yaml:"blocked_commands"`
}

// DefaultRules is the fallback when no rules file exists: read access
// under the user's home, a small set of benign apps, and the standard
// dangerous-command screen.
var DefaultRules = Rules{
	AllowedPaths: []string{"~/"},
	AllowedApps:  []string{"calculator", "notes", "terminal", "browser", "editor"},
	BlockedCommands: []string{
		"rm -rf /",
		"mkfs",
		"dd if=",
		":(){ :|:& };:",
		"> /dev/sda",
		"chmod -R 777 /",
		"chown -R",
		"shutdown",
		"reboot",
		"init 0",
		"halt",
		"poweroff",
	},
}

// Guard answers scope questions against a compiled rule set. ReplaceRules
// swaps the whole set atomically, which is what hot reload uses.
type Guard struct {
	mu    sync.RWMutex
	paths []string // absolute, cleaned prefixes
	apps  map[string]bool
	cmds  []string // lowercased substrings
}

// New compiles a rule set into a Guard.
func New(rules Rules) *Guard {
	g := &Guard{}
	g.ReplaceRules(rules)
	return g
}

// Load reads rules from a YAML file. A missing file yields the defaults.
func Load(path string) (*Guard, error) {
	rules, err := loadRules(path)
	if err != nil {
		return nil, err
	}
	return New(rules), nil
}

func loadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules, nil
		}
		return Rules{}, fmt.Errorf("scope: read rules: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("scope: parse rules: %w", err)
	}
	return rules, nil
}

// Reload re-reads the rules file and swaps the compiled set in place.
func (g *Guard) Reload(path string) error {
	rules, err := loadRules(path)
	if err != nil {
		return err
	}
	g.ReplaceRules(rules)
	return nil
}

// ReplaceRules recompiles and atomically installs a new rule set.
func (g *Guard) ReplaceRules(rules Rules) {
	var paths []string
	for _, p := range rules.AllowedPaths {
		paths = append(paths, filepath.Clean(expandHome(p)))
	}
	apps := make(map[string]bool, len(rules.AllowedApps))
	for _, a := range rules.AllowedApps {
		apps[strings.ToLower(a)] = true
	}
	var cmds []string
	for _, c := range rules.BlockedCommands {
		cmds = append(cmds, strings.ToLower(c))
	}

	g.mu.Lock()
	g.paths = paths
	g.apps = apps
	g.cmds = cmds
	g.mu.Unlock()
}

// CheckPath reports whether a filesystem path falls under an allowed
// root. The path is cleaned first, so traversal via ".." cannot escape.
func (g *Guard) CheckPath(path string) error {
	abs, err := filepath.Abs(filepath.Clean(expandHome(path)))
	if err != nil {
		return fmt.Errorf("scope: resolve path: %w", err)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, root := range g.paths {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("scope: path %q is outside allowed roots", path)
}

// CheckApp reports whether an application name is on the allowlist.
func (g *Guard) CheckApp(name string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.apps[strings.ToLower(strings.TrimSpace(name))] {
		return nil
	}
	return fmt.Errorf("scope: application %q is not allowed", name)
}

// CheckURL accepts http and https URLs that do not point at loopback,
// link-local, or private address space. Hostnames are not resolved here;
// only literal addresses are screened, which keeps the check fast and
// deterministic.
func (g *Guard) CheckURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("scope: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scope: scheme %q is not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("scope: url has no host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("scope: loopback host %q is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("scope: address %s is not allowed", ip)
		}
	}
	return nil
}

// CheckElevation screens an elevation command against the blocked
// substrings. Matching is case-insensitive.
func (g *Guard) CheckElevation(command string) error {
	lower := strings.ToLower(command)
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, pattern := range g.cmds {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("scope: command matches blocked pattern %q", pattern)
		}
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
