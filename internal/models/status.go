package models

import "strings"

// Account status values. Anything outside this set is treated as inactive.
const (
	AccountStatusActive       = "active"
	AccountStatusInactive     = "inactive"
	AccountStatusPendingSetup = "pending_setup"
	AccountStatusSuspended    = "suspended"
)

// Membership status values
const (
	MemberStatusPending  = "pending"
	MemberStatusActive   = "active"
	MemberStatusInactive = "inactive"
	MemberStatusRevoked  = "revoked"
)

// Membership roles, ordered by privilege
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Plan identifiers
const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// NormalizeAccountStatus maps a raw status string to a known account status.
// Input is untrusted: case and whitespace are tolerated, unknown or empty
// values fail closed to inactive.
func NormalizeAccountStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case AccountStatusActive:
		return AccountStatusActive
	case AccountStatusPendingSetup:
		return AccountStatusPendingSetup
	case AccountStatusSuspended:
		return AccountStatusSuspended
	case AccountStatusInactive:
		return AccountStatusInactive
	default:
		return AccountStatusInactive
	}
}

// NormalizeMemberStatus maps a raw status string to a known membership
// status. Unknown or empty values fail closed to inactive.
func NormalizeMemberStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case MemberStatusPending:
		return MemberStatusPending
	case MemberStatusActive:
		return MemberStatusActive
	case MemberStatusRevoked:
		return MemberStatusRevoked
	case MemberStatusInactive:
		return MemberStatusInactive
	default:
		return MemberStatusInactive
	}
}

// NormalizeRole maps a raw role string to a known role. Unknown or empty
// values fall to viewer, the lowest privilege.
func NormalizeRole(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case RoleOwner:
		return RoleOwner
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	case RoleViewer:
		return RoleViewer
	default:
		return RoleViewer
	}
}

var roleWeights = map[string]int{
	RoleOwner:  4,
	RoleAdmin:  3,
	RoleEditor: 2,
	RoleViewer: 1,
}

// RoleWeight returns the privilege weight for a role. Unknown roles weigh
// the same as viewer. This is the single ordering authority for role
// comparisons; no caller should compare role strings directly.
func RoleWeight(role string) int {
	if w, ok := roleWeights[NormalizeRole(role)]; ok {
		return w
	}
	return roleWeights[RoleViewer]
}

// RoleAtLeast reports whether role carries at least the privilege of minRole.
func RoleAtLeast(role, minRole string) bool {
	return RoleWeight(role) >= RoleWeight(minRole)
}

// EffectiveLimits is the plan-derived quota set attached to an access
// context. -1 means unlimited.
type EffectiveLimits struct {
	MaxMembers   int `json:"max_members"`
	MaxProjects  int `json:"max_projects"`
	MaxStorageMB int `json:"max_storage_mb"`
}

var planLimits = map[string]EffectiveLimits{
	PlanFree:       {MaxMembers: 3, MaxProjects: 1, MaxStorageMB: 500},
	PlanStarter:    {MaxMembers: 10, MaxProjects: 5, MaxStorageMB: 5120},
	PlanPro:        {MaxMembers: 50, MaxProjects: 50, MaxStorageMB: 51200},
	PlanEnterprise: {MaxMembers: -1, MaxProjects: -1, MaxStorageMB: -1},
}

// LimitsForPlan projects a plan identifier onto its effective limits.
// Unknown plans get the free tier.
func LimitsForPlan(plan string) EffectiveLimits {
	if l, ok := planLimits[plan]; ok {
		return l
	}
	return planLimits[PlanFree]
}
