// Package authz is the pure RBAC decision engine. It holds no mutable
// state beyond the static role→capability table built at init, does no
// I/O, and is safe for unsynchronized concurrent use.
package authz

import "github.com/pkamenev/toolgate/internal/model"

// roleCaps maps each role to its explicit capability set. The sets are
// built by union so containment (admin ⊇ operator ⊇ viewer) holds by
// construction rather than by an inheritance mechanism.
var roleCaps map[model.Role]map[model.Capability]bool

func init() {
	viewer := capSet(
		model.CapSearchFiles,
		model.CapReadFile,
		model.CapListProcesses,
		model.CapReadWebpage,
	)
	operator := union(viewer, capSet(
		model.CapScheduleReminder,
		model.CapLaunchApp,
		model.CapElevate,
	))
	admin := union(operator, capSet(
		model.CapExportAudit,
	))

	roleCaps = map[model.Role]map[model.Capability]bool{
		model.RoleViewer:   viewer,
		model.RoleOperator: operator,
		model.RoleAdmin:    admin,
	}
}

// Decide returns the authorization verdict for a role requesting a
// capability. A capability outside the role's set is always Deny. Within
// the set, high sensitivity requires confirmation for every role — admin
// included — and anything else is allowed outright.
func Decide(role model.Role, capability model.Capability) model.Decision {
	caps, ok := roleCaps[role]
	if !ok {
		return model.Deny
	}
	if !caps[capability] {
		return model.Deny
	}
	if capability.Sensitivity() == model.SensHigh {
		return model.AllowRequiresConfirmation
	}
	return model.Allow
}

// Allowed reports whether the role's set contains the capability at all,
// ignoring the confirmation requirement.
func Allowed(role model.Role, capability model.Capability) bool {
	return Decide(role, capability) != model.Deny
}

// CapabilitiesFor returns the role's capability set in enumeration order.
func CapabilitiesFor(role model.Role) []model.Capability {
	caps, ok := roleCaps[role]
	if !ok {
		return nil
	}
	out := make([]model.Capability, 0, len(caps))
	for _, c := range model.Capabilities {
		if caps[c] {
			out = append(out, c)
		}
	}
	return out
}

func capSet(caps ...model.Capability) map[model.Capability]bool {
	m := make(map[model.Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

func union(a, b map[model.Capability]bool) map[model.Capability]bool {
	m := make(map[model.Capability]bool, len(a)+len(b))
	for c := range a {
		m[c] = true
	}
	for c := range b {
		m[c] = true
	}
	return m
}
