package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kindred-inc/kindred-api/schema"
	"github.com/kindred-inc/kindred-api/signature"
	"github.com/kindred-inc/kindred-api/store"
)

// issueRenewal starts the annual re-confirmation cycle for an approved
// record and emails the parent a fresh link.
func (s *Server) issueRenewal(c *gin.Context) {
	var params struct {
		RecordID string `json:"record_id" binding:"required"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	record, err := s.store.IssueRenewal(params.RecordID)
	if err != nil {
		switch err {
		case store.ErrConsentNotFound:
			abortWithEncoding(c, http.StatusNotFound, errorNotFound, err)
		case store.ErrConsentNotApproved:
			abortWithEncoding(c, http.StatusConflict, errorConsentNotApproved, err)
		default:
			abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		}
		return
	}

	sent := true
	if s.notifier != nil {
		if err := s.notifier.SendRenewalRequest(record); err != nil {
			log.WithError(err).WithField("consent_id", record.ID).Error("fail to send renewal email")
			notificationFailures.Inc()
			if s.alerts != nil {
				if alertErr := s.alerts.PublishNotificationFailure(c.Request.Context(), record, err); alertErr != nil {
					log.WithError(alertErr).Error("fail to publish notification alert")
				}
			}
			sent = false
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                 record.ID,
		"renewal_status":     record.RenewalStatus,
		"renewal_expires_at": record.RenewalExpiresAt,
		"notification_sent":  sent,
	})
}

// getRenewal mirrors the consent verify lookup for renewal codes.
func (s *Server) getRenewal(c *gin.Context) {
	code := c.Param("code")

	record, err := s.store.GetRenewalByCode(code)
	if err != nil {
		s.abortConsentLookup(c, err)
		return
	}

	s.auditAccess(c, record, schema.AuditActionCodeLookup)

	c.JSON(http.StatusOK, gin.H{
		"id":                 record.ID,
		"parent_name":        record.ParentName,
		"consent_version":    record.ConsentVersion,
		"consent":            record.Consent,
		"opt_out":            record.OptOut,
		"renewal_expires_at": record.RenewalExpiresAt,
	})
}

// approveRenewal consumes the renewal code and responds with the new record
// that supersedes the old one.
func (s *Server) approveRenewal(c *gin.Context) {
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

	record, err := s.store.GetRenewalByCode(code)
	if err != nil {
		s.abortConsentLookup(c, err)
		return
	}

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

	renewed, err := s.store.ApproveRenewal(code, store.ApproveConsentArgs{
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

	consentTransitions.WithLabelValues("renewal_approved").Inc()

	c.JSON(http.StatusOK, gin.H{
		"id":                    renewed.ID,
		"status":                renewed.Status,
		"supersedes_consent_id": renewed.SupersedesConsentID,
		"valid_until":           renewed.ValidUntil,
	})
}

func (s *Server) denyRenewal(c *gin.Context) {
	code := c.Param("code")

	record, err := s.store.DenyRenewal(code)
	if err != nil {
		s.abortConsentTransition(c, err)
		return
	}

	consentTransitions.WithLabelValues("renewal_denied").Inc()

	c.JSON(http.StatusOK, gin.H{
		"id":             record.ID,
		"renewal_status": record.RenewalStatus,
	})
}
