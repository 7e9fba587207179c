// Package tools implements the system actions behind each capability.
// Tools never see sessions or roles; by the time a tool runs, the
// gateway has already authenticated, authorized, and (when required)
// confirmed the invocation. A tool's job is the action itself plus its
// own scope checks on the concrete target.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pkamenev/toolgate/internal/model"
)

var ErrUnknownTool = errors.New("tools: unknown tool")

// Tool is one executable system action.
type Tool interface {
	Capability() model.Capability
	// Invoke runs the action and returns a human-readable result.
	// A non-nil error means the tool ran and failed; refusals on
	// scope grounds are errors too.
	Invoke(ctx context.Context, params map[string]string) (string, error)
}

// Registry maps capabilities to their tools.
type Registry struct {
	tools map[model.Capability]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[model.Capability]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Capability()] = t
	}
	return r
}

// Get returns the tool for a capability.
func (r *Registry) Get(capability model.Capability) (Tool, error) {
	t, ok := r.tools[capability]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, capability)
	}
	return t, nil
}

// Capabilities returns the registered capabilities in sorted order.
func (r *Registry) Capabilities() []model.Capability {
	caps := make([]model.Capability, 0, len(r.tools))
	for c := range r.tools {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

func requireParam(params map[string]string, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return "", fmt.Errorf("tools: missing required parameter %q", key)
	}
	return v, nil
}
