package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kindred-inc/kindred-api/schema"
	"github.com/kindred-inc/kindred-api/signature"
	"github.com/kindred-inc/kindred-api/store"
)

type consentRequestParams struct {
	ParentName     string              `json:"parent_name" binding:"required"`
	ParentEmail    string              `json:"parent_email" binding:"required,email"`
	Relationship   string              `json:"relationship" binding:"required"`
	StudentID      string              `json:"student_id" binding:"required"`
	SchoolID       string              `json:"school_id" binding:"required"`
	ConsentVersion string              `json:"consent_version" binding:"required"`
	Consent        schema.ConsentFlags `json:"consent"`
	OptOut         schema.OptOutFlags  `json:"opt_out"`
}

type approveConsentParams struct {
	SignerFullName         string               `json:"signer_full_name" binding:"required,min=2"`
	FinalConsentConfirmed  bool                 `json:"final_consent_confirmed"`
	Consent                *schema.ConsentFlags `json:"consent"`
	OptOut                 *schema.OptOutFlags  `json:"opt_out"`
	ExternalSignatureInput string               `json:"external_signature_input"`
	DeviceFingerprint      string               `json:"device_fingerprint"`
}

// requestConsent issues a new consent record and fires the notification
// email. A failed send is a soft warning, not a request failure.
func (s *Server) requestConsent(c *gin.Context) {
	var params consentRequestParams

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	record, err := s.store.IssueConsent(store.ConsentRequest{
		ParentName:     params.ParentName,
		ParentEmail:    params.ParentEmail,
		Relationship:   params.Relationship,
		StudentID:      params.StudentID,
		SchoolID:       params.SchoolID,
		ConsentVersion: params.ConsentVersion,
		Consent:        params.Consent,
		OptOut:         params.OptOut,
	})
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	consentTransitions.WithLabelValues("requested").Inc()
	sent := s.dispatchConsentEmail(c, record)

	c.JSON(http.StatusOK, gin.H{
		"id":                record.ID,
		"status":            record.Status,
		"link_expires_at":   record.LinkExpiresAt,
		"notification_sent": sent,
	})
}

// dispatchConsentEmail sends the verification email, swallowing failure into
// a log line, a metric and an operational alert.
func (s *Server) dispatchConsentEmail(c *gin.Context, record *schema.ConsentRecord) bool {
	if s.notifier == nil {
		return false
	}

	if err := s.notifier.SendConsentRequest(record); err != nil {
		log.WithError(err).WithField("consent_id", record.ID).Error("fail to send consent email")
		notificationFailures.Inc()

		if s.alerts != nil {
			if alertErr := s.alerts.PublishNotificationFailure(c.Request.Context(), record, err); alertErr != nil {
				log.WithError(alertErr).Error("fail to publish notification alert")
			}
		}
		return false
	}
	return true
}

// verifyConsentCode is the read-only lookup behind the emailed link. It
// never consumes the code; it only reports the current flag values for the
// parent to review.
func (s *Server) verifyConsentCode(c *gin.Context) {
	code := c.Param("code")

	record, err := s.store.GetConsentByCode(code)
	if err != nil {
		s.abortConsentLookup(c, err)
		return
	}

	s.auditAccess(c, record, schema.AuditActionCodeLookup)

	c.JSON(http.StatusOK, gin.H{
		"id":              record.ID,
		"parent_name":     record.ParentName,
		"relationship":    record.Relationship,
		"consent_version": record.ConsentVersion,
		"consent":         record.Consent,
		"opt_out":         record.OptOut,
		"link_expires_at": record.LinkExpiresAt,
	})
}

// approveConsent consumes the code: it computes the digital signature over
// the final flag values and performs the atomic pending->approved
// transition.
func (s *Server) approveConsent(c *gin.Context) {
	code := c.Param("code")

	var params approveConsentParams
	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}
	if !params.FinalConsentConfirmed {
		abortWithEncoding(c, http.StatusBadRequest, errorSignatureInputMissing)
		return
	}

	record, err := s.store.GetConsentByCode(code)
	if err != nil {
		s.abortConsentLookup(c, err)
		return
	}

	// the parent may have edited flags on the review screen
	consentFlags := record.Consent
	if params.Consent != nil {
		consentFlags = *params.Consent
	}
	optOut := record.OptOut
	if params.OptOut != nil {
		optOut = *params.OptOut
	}

	now := time.Now().UTC()

	hash, canonical, err := signature.Sign(signature.Payload{
		ConsentVersion:        record.ConsentVersion,
		ParentName:            record.ParentName,
		ParentEmail:           record.ParentEmail,
		SignerFullName:        params.SignerFullName,
		ConsentFlags:          consentFlags,
		FinalConsentConfirmed: params.FinalConsentConfirmed,
		Timestamp:             now,
	}, params.ExternalSignatureInput, s.signingSecret)
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	approved, err := s.store.ApproveConsent(code, store.ApproveConsentArgs{
		SignerFullName:        params.SignerFullName,
		FinalConsentConfirmed: params.FinalConsentConfirmed,
		Consent:               consentFlags,
		OptOut:                optOut,
		SignatureHash:         hash,
		SignaturePayload:      canonical,
		SignatureTimestamp:    now,
		SignatureMetadata: &schema.SignatureMetadata{
			IP:                c.ClientIP(),
			UserAgent:         c.Request.UserAgent(),
			DeviceFingerprint: params.DeviceFingerprint,
		},
	})
	if err != nil {
		s.abortConsentTransition(c, err)
		return
	}

	consentTransitions.WithLabelValues("approved").Inc()

	c.JSON(http.StatusOK, gin.H{
		"id":               approved.ID,
		"status":           approved.Status,
		"approved_at":      approved.ApprovedAt,
		"signer_full_name": approved.SignerFullName,
	})
}

// denyConsent consumes the code and records a denial; the dependent student
// account stays inactive.
func (s *Server) denyConsent(c *gin.Context) {
	code := c.Param("code")

	denied, err := s.store.DenyConsent(code)
	if err != nil {
		s.abortConsentTransition(c, err)
		return
	}

	consentTransitions.WithLabelValues("denied").Inc()

	c.JSON(http.StatusOK, gin.H{
		"id":     denied.ID,
		"status": denied.Status,
	})
}

func (s *Server) revokeConsent(c *gin.Context) {
	var params struct {
		ParentEmail string `json:"parent_email" binding:"required,email"`
		RecordID    string `json:"record_id" binding:"required"`
		Reason      string `json:"reason" binding:"required"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	revoked, err := s.store.RevokeConsent(params.ParentEmail, params.RecordID, params.Reason)
	if err != nil {
		switch err {
		case store.ErrConsentNotFound:
			abortWithEncoding(c, http.StatusNotFound, errorNotFound, err)
		case store.ErrParentEmailMismatch:
			abortWithEncoding(c, http.StatusForbidden, errorEmailMismatch, err)
		case store.ErrConsentNotApproved:
			abortWithEncoding(c, http.StatusConflict, errorConsentNotApproved, err)
		default:
			abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		}
		return
	}

	consentTransitions.WithLabelValues("revoked").Inc()

	c.JSON(http.StatusOK, gin.H{
		"id":         revoked.ID,
		"status":     revoked.Status,
		"revoked_at": revoked.RevokedAt,
	})
}

// consentStatus reports the effective status for a student, school-scoped.
func (s *Server) consentStatus(c *gin.Context) {
	studentID := c.Param("studentID")

	record, err := s.store.GetLatestConsentByStudent(studentID)
	if err != nil {
		if err == store.ErrConsentNotFound {
			abortWithEncoding(c, http.StatusNotFound, errorNotFound, err)
			return
		}
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	if !s.schoolScoped(c, record.SchoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student_id":  studentID,
		"consent_id":  record.ID,
		"status":      record.EffectiveStatus(time.Now().UTC()),
		"valid_until": record.ValidUntil,
	})
}

// consentAudit returns the masked audit trail for a student.
func (s *Server) consentAudit(c *gin.Context) {
	studentID := c.Param("studentID")

	record, err := s.store.GetLatestConsentByStudent(studentID)
	if err != nil {
		if err == store.ErrConsentNotFound {
			abortWithEncoding(c, http.StatusNotFound, errorNotFound, err)
			return
		}
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	if !s.schoolScoped(c, record.SchoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	events, err := s.store.ListAuditEvents(studentID, 200)
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	s.auditStaffAction(c, record, schema.AuditActionDashboardAccess)

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// resendConsent re-sends the verification email for a still-pending record.
func (s *Server) resendConsent(c *gin.Context) {
	recordID := c.Param("recordID")

	record, err := s.store.GetConsentByID(recordID)
	if err != nil {
		if err == store.ErrConsentNotFound {
			abortWithEncoding(c, http.StatusNotFound, errorNotFound, err)
			return
		}
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	if !s.schoolScoped(c, record.SchoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}
	if record.Status != schema.ConsentStatusPending || record.IsCodeUsed {
		abortWithEncoding(c, http.StatusConflict, errorConsentAlreadyUsed)
		return
	}
	if record.LinkExpired(time.Now().UTC()) {
		abortWithEncoding(c, http.StatusGone, errorConsentLinkExpired)
		return
	}

	sent := s.dispatchConsentEmail(c, record)
	s.auditStaffAction(c, record, schema.AuditActionConsentResent)

	c.JSON(http.StatusOK, gin.H{
		"id":                record.ID,
		"notification_sent": sent,
	})
}

// abortConsentLookup maps lookup failures onto the coded error table.
func (s *Server) abortConsentLookup(c *gin.Context, err error) {
	switch err {
	case store.ErrConsentNotFound:
		abortWithEncoding(c, http.StatusNotFound, errorInvalidConsentCode, err)
	case store.ErrLinkExpired:
		abortWithEncoding(c, http.StatusGone, errorConsentLinkExpired, err)
	case store.ErrCodeAlreadyUsed:
		abortWithEncoding(c, http.StatusConflict, errorConsentAlreadyUsed, err)
	default:
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
	}
}

func (s *Server) abortConsentTransition(c *gin.Context, err error) {
	if err == store.ErrSignatureInputMissing {
		abortWithEncoding(c, http.StatusBadRequest, errorSignatureInputMissing, err)
		return
	}
	s.abortConsentLookup(c, err)
}

// auditAccess appends a read-access event for a parent-facing action.
func (s *Server) auditAccess(c *gin.Context, record *schema.ConsentRecord, action schema.AuditAction) {
	if err := s.store.AppendAuditEvent(schema.AuditEvent{
		Actor:     record.ParentEmail,
		ActorRole: schema.RoleParent,
		Action:    action,
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}); err != nil {
		log.WithError(err).Error("fail to append audit event")
	}
}

// auditStaffAction appends an event attributed to the logged-in staff user.
func (s *Server) auditStaffAction(c *gin.Context, record *schema.ConsentRecord, action schema.AuditAction) {
	if err := s.store.AppendAuditEvent(schema.AuditEvent{
		Actor:     c.GetString("requester"),
		ActorRole: schema.ActorRole(c.GetString("role")),
		Action:    action,
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}); err != nil {
		log.WithError(err).Error("fail to append audit event")
	}
}
