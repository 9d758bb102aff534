package schema

import "time"

const (
	ConsentCollection = "consentRecords"
)

// ConsentStatus is the lifecycle state of a consent record. "expired" is
// never written to the store: it is derived at read time from LinkExpiresAt.
type ConsentStatus string

const (
	ConsentStatusPending  ConsentStatus = "pending"
	ConsentStatusApproved ConsentStatus = "approved"
	ConsentStatusDenied   ConsentStatus = "denied"
	ConsentStatusRevoked  ConsentStatus = "revoked"
	ConsentStatusExpired  ConsentStatus = "expired"
)

// ConsentLinkTTL is how long a verification link stays valid after issuance.
const ConsentLinkTTL = 72 * time.Hour

// RenewalValidity is how long a renewed consent remains valid.
const RenewalValidity = 365 * 24 * time.Hour

// ConsentFlags are the permissions a parent grants.
type ConsentFlags struct {
	DataCollection     bool `json:"data_collection" bson:"data_collection"`
	DataSharing        bool `json:"data_sharing" bson:"data_sharing"`
	EmailCommunication bool `json:"email_communication" bson:"email_communication"`
	EducationalReports bool `json:"educational_reports" bson:"educational_reports"`
	ActivityTracking   bool `json:"activity_tracking" bson:"activity_tracking"`
}

// OptOutFlags are the restrictions a parent opts into.
type OptOutFlags struct {
	Analytics         bool `json:"analytics" bson:"analytics"`
	ThirdPartySharing bool `json:"third_party_sharing" bson:"third_party_sharing"`
	Marketing         bool `json:"marketing" bson:"marketing"`
	Notifications     bool `json:"notifications" bson:"notifications"`
}

// SignatureMetadata captures the request context of the signing action.
type SignatureMetadata struct {
	IP                string `json:"ip" bson:"ip"`
	UserAgent         string `json:"user_agent" bson:"user_agent"`
	DeviceFingerprint string `json:"device_fingerprint" bson:"device_fingerprint"`
}

type ConsentRecord struct {
	ID               string        `json:"id" bson:"_id"`
	ParentName       string        `json:"parent_name" bson:"parent_name"`
	ParentEmail      string        `json:"parent_email" bson:"parent_email"`
	Relationship     string        `json:"relationship" bson:"relationship"`
	StudentID        string        `json:"student_id" bson:"student_id"`
	SchoolID         string        `json:"school_id" bson:"school_id"`
	ConsentVersion   string        `json:"consent_version" bson:"consent_version"`
	Status           ConsentStatus `json:"status" bson:"status"`
	VerificationCode string        `json:"-" bson:"verification_code,omitempty"`
	LinkExpiresAt    time.Time     `json:"link_expires_at" bson:"link_expires_at"`
	IsCodeUsed       bool          `json:"-" bson:"is_code_used"`
	IsImmutable      bool          `json:"-" bson:"is_immutable"`
	Consent          ConsentFlags  `json:"consent" bson:"consent"`
	OptOut           OptOutFlags   `json:"opt_out" bson:"opt_out"`

	// signature fields, present only once approved
	SignerFullName       string             `json:"signer_full_name,omitempty" bson:"signer_full_name,omitempty"`
	DigitalSignatureHash string             `json:"-" bson:"digital_signature_hash,omitempty"`
	SignaturePayload     string             `json:"-" bson:"signature_payload,omitempty"`
	SignatureTimestamp   *time.Time         `json:"signature_ts,omitempty" bson:"signature_ts,omitempty"`
	SignatureMetadata    *SignatureMetadata `json:"-" bson:"signature_metadata,omitempty"`

	// renewal fields
	RenewalStatus           ConsentStatus `json:"renewal_status,omitempty" bson:"renewal_status,omitempty"`
	RenewalVerificationCode string        `json:"-" bson:"renewal_verification_code,omitempty"`
	RenewalExpiresAt        *time.Time    `json:"renewal_expires_at,omitempty" bson:"renewal_expires_at,omitempty"`
	ValidUntil              *time.Time    `json:"valid_until,omitempty" bson:"valid_until,omitempty"`
	SupersedesConsentID     string        `json:"supersedes_consent_id,omitempty" bson:"supersedes_consent_id,omitempty"`

	RevokedReason string     `json:"revoked_reason,omitempty" bson:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty" bson:"approved_at,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" bson:"revoked_at,omitempty"`
}

// LinkExpired reports whether the verification link has lapsed. The boundary
// is inclusive: a link whose expiry equals now is already expired.
func (r *ConsentRecord) LinkExpired(now time.Time) bool {
	return !now.Before(r.LinkExpiresAt)
}

// EffectiveStatus folds link expiry into the stored status for presentation.
// A pending record past its link expiry reads as expired without any write.
func (r *ConsentRecord) EffectiveStatus(now time.Time) ConsentStatus {
	if r.Status == ConsentStatusPending && r.LinkExpired(now) {
		return ConsentStatusExpired
	}
	return r.Status
}
