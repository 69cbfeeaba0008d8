package model

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleOrgAdmin   UserRole = "ORG_ADMIN"
	UserRoleDispatcher UserRole = "DISPATCHER"
	UserRoleEmployee   UserRole = "EMPLOYEE"
)

type Principal struct {
	UserID     uuid.UUID
	OrgID      uuid.UUID
	Role       UserRole
	EmployeeID *uuid.UUID
}

func (p Principal) IsOrgAdmin() bool {
	return p.Role == UserRoleOrgAdmin
}

func (p Principal) IsDispatcher() bool {
	return p.Role == UserRoleDispatcher
}

func (p Principal) IsEmployee() bool {
	return p.Role == UserRoleEmployee
}

// CanManageTrips reports whether the principal may act on trips other than
// their own (resolve anomalies, re-run reconciliation, cancel on behalf).
func (p Principal) CanManageTrips() bool {
	return p.Role == UserRoleOrgAdmin || p.Role == UserRoleDispatcher
}

// AllowsTrip reports whether the principal may view or mutate the given trip.
// Employees are restricted to their own trips within their organization.
func (p Principal) AllowsTrip(t *Trip) bool {
	if t == nil || t.OrganizationID != p.OrgID {
		return false
	}
	if p.CanManageTrips() {
		return true
	}
	return p.EmployeeID != nil && *p.EmployeeID == t.EmployeeID
}
