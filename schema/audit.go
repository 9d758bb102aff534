package schema

import "time"

const (
	AuditEventCollection = "auditEvents"
)

// AuditAction identifies what happened. One event is appended per action;
// events are never edited or deleted.
type AuditAction string

const (
	AuditActionConsentRequested AuditAction = "consent_requested"
	AuditActionCodeLookup       AuditAction = "code_lookup"
	AuditActionConsentApproved  AuditAction = "consent_approved"
	AuditActionConsentDenied    AuditAction = "consent_denied"
	AuditActionConsentRevoked   AuditAction = "consent_revoked"
	AuditActionConsentResent    AuditAction = "consent_resent"
	AuditActionRenewalRequested AuditAction = "renewal_requested"
	AuditActionRenewalApproved  AuditAction = "renewal_approved"
	AuditActionRenewalDenied    AuditAction = "renewal_denied"
	AuditActionDashboardAccess  AuditAction = "dashboard_access"
	AuditActionDashboardExport  AuditAction = "dashboard_export"
)

type ActorRole string

const (
	RoleStudent ActorRole = "student"
	RoleParent  ActorRole = "parent"
	RoleTeacher ActorRole = "teacher"
	RoleAdmin   ActorRole = "admin"
)

type AuditEvent struct {
	ID        string                 `json:"id" bson:"_id"`
	Actor     string                 `json:"actor" bson:"actor"`
	ActorRole ActorRole              `json:"actor_role" bson:"actor_role"`
	Action    AuditAction            `json:"action" bson:"action"`
	ConsentID string                 `json:"consent_id,omitempty" bson:"consent_id,omitempty"`
	StudentID string                 `json:"student_id,omitempty" bson:"student_id,omitempty"`
	SchoolID  string                 `json:"school_id,omitempty" bson:"school_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty" bson:"details,omitempty"`
	IP        string                 `json:"ip,omitempty" bson:"ip,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	CreatedAt time.Time              `json:"ts" bson:"ts"`
}
