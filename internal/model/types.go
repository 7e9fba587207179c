package model

import "fmt"

// Sensitivity classifies how consequential a capability is.
type Sensitivity string

const (
	SensLow    Sensitivity = "low"
	SensMedium Sensitivity = "medium"
	SensHigh   Sensitivity = "high"
)

// SensRank maps sensitivity to a comparable integer.
var SensRank = map[Sensitivity]int{
	SensLow:    0,
	SensMedium: 1,
	SensHigh:   2,
}

// Role is one of the fixed role enumeration. Roles are ordered by strict
// containment of capability: admin ⊇ operator ⊇ viewer.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Roles lists all valid roles in ascending order of capability.
var Roles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts a string to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q: must be viewer, operator, or admin", s)
	}
	return r, nil
}

// Capability is a named permission a tool invocation requires.
type Capability string

const (
	CapSearchFiles      Capability = "search_files"
	CapReadFile         Capability = "read_file"
	CapListProcesses    Capability = "list_processes"
	CapReadWebpage      Capability = "read_webpage"
	CapScheduleReminder Capability = "schedule_reminder"
	CapLaunchApp        Capability = "launch_app"
	CapElevate          Capability = "elevate"
	CapExportAudit      Capability = "export_audit"
)

// capSensitivity is the fixed sensitivity classification per capability.
var capSensitivity = map[Capability]Sensitivity{
	CapSearchFiles:      SensLow,
	CapReadFile:         SensMedium,
	CapListProcesses:    SensMedium,
	CapReadWebpage:      SensMedium,
	CapScheduleReminder: SensLow,
	CapLaunchApp:        SensMedium,
	CapElevate:          SensHigh,
	CapExportAudit:      SensMedium,
}

// Capabilities lists every known capability.
var Capabilities = []Capability{
	CapSearchFiles,
	CapReadFile,
	CapListProcesses,
	CapReadWebpage,
	CapScheduleReminder,
	CapLaunchApp,
	CapElevate,
	CapExportAudit,
}

// Known reports whether the capability is part of the fixed enumeration.
func (c Capability) Known() bool {
	_, ok := capSensitivity[c]
	return ok
}

// Sensitivity returns the capability's fixed sensitivity level.
// Unknown capabilities rank high so they are never under-classified.
func (c Capability) Sensitivity() Sensitivity {
	if s, ok := capSensitivity[c]; ok {
		return s
	}
	return SensHigh
}

// Decision is the authorization engine's verdict for one request.
type Decision string

const (
	Deny                      Decision = "deny"
	Allow                     Decision = "allow"
	AllowRequiresConfirmation Decision = "allow_requires_confirmation"
)

// Outcome is the decision outcome recorded in the audit chain.
type Outcome string

const (
	OutcomeAllowed             Outcome = "allowed"
	OutcomeDenied              Outcome = "denied"
	OutcomeAllowedAfterConfirm Outcome = "allowed_after_confirmation"
)
