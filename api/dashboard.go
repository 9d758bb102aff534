package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kindred-inc/kindred-api/schema"
	"github.com/kindred-inc/kindred-api/store"
)

// listSchoolConsents is the paginated dashboard listing. The status filter
// accepts the derived "expired" value.
func (s *Server) listSchoolConsents(c *gin.Context) {
	schoolID := c.Param("schoolID")

	if !s.schoolScoped(c, schoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	page, _ := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	pageSize, _ := strconv.ParseInt(c.DefaultQuery("page_size", "50"), 10, 64)

	records, total, err := s.store.ListSchoolConsents(store.ConsentListQuery{
		SchoolID: schoolID,
		Status:   schema.ConsentStatus(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	now := time.Now().UTC()
	items := make([]gin.H, 0, len(records))
	for _, record := range records {
		items = append(items, gin.H{
			"id":          record.ID,
			"student_id":  record.StudentID,
			"parent_name": record.ParentName,
			"status":      record.EffectiveStatus(now),
			"created_at":  record.CreatedAt,
			"valid_until": record.ValidUntil,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"consents": items,
		"total":    total,
		"page":     page,
	})
}

// exportSchoolConsentsCSV streams the school's consent roster as an
// attachment. The endpoint is rate limited per requester.
func (s *Server) exportSchoolConsentsCSV(c *gin.Context) {
	schoolID := c.Param("schoolID")

	if !s.schoolScoped(c, schoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	if !s.exportLimiter.Allow(c.Request.Context(), c.GetString("requester")) {
		abortWithEncoding(c, http.StatusTooManyRequests, errorTooManyRequests)
		return
	}

	records, err := s.store.ListAllSchoolConsents(schoolID, schema.ConsentStatus(c.Query("status")))
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	if err := s.store.AppendAuditEvent(schema.AuditEvent{
		Actor:     c.GetString("requester"),
		ActorRole: schema.ActorRole(c.GetString("role")),
		Action:    schema.AuditActionDashboardExport,
		SchoolID:  schoolID,
		Details:   map[string]interface{}{"rows": len(records)},
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}); err != nil {
		log.WithError(err).Error("fail to append audit event")
	}

	filename := fmt.Sprintf("consents-%s-%s.csv", schoolID, time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	writer := csv.NewWriter(c.Writer)
	for _, row := range buildConsentCSVRows(records, time.Now().UTC()) {
		if err := writer.Write(row); err != nil {
			log.WithError(err).Error("fail to write csv row")
			return
		}
	}
	writer.Flush()
}

// buildConsentCSVRows renders the export, header row first. Verification
// codes and signature material never appear in exports.
func buildConsentCSVRows(records []schema.ConsentRecord, now time.Time) [][]string {
	rows := [][]string{{
		"record_id", "student_id", "parent_name", "relationship",
		"status", "consent_version", "granted_flags", "created_at", "valid_until",
	}}

	for _, record := range records {
		validUntil := ""
		if record.ValidUntil != nil {
			validUntil = record.ValidUntil.Format(time.RFC3339)
		}

		rows = append(rows, []string{
			record.ID,
			record.StudentID,
			record.ParentName,
			record.Relationship,
			string(record.EffectiveStatus(now)),
			record.ConsentVersion,
			strings.Join(grantedFlags(record.Consent), ";"),
			record.CreatedAt.Format(time.RFC3339),
			validUntil,
		})
	}

	return rows
}

func grantedFlags(flags schema.ConsentFlags) []string {
	granted := []string{}
	if flags.DataCollection {
		granted = append(granted, "data_collection")
	}
	if flags.DataSharing {
		granted = append(granted, "data_sharing")
	}
	if flags.EmailCommunication {
		granted = append(granted, "email_communication")
	}
	if flags.EducationalReports {
		granted = append(granted, "educational_reports")
	}
	if flags.ActivityTracking {
		granted = append(granted, "activity_tracking")
	}
	return granted
}

// schoolInsights serves the climate rollup. The generator behind it is a
// stub; see the insights package.
func (s *Server) schoolInsights(c *gin.Context) {
	schoolID := c.Param("schoolID")

	if !s.schoolScoped(c, schoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	counts, err := s.store.CountSchoolConsentsByStatus(schoolID)
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"consent_counts": counts,
		"climate":        s.insights.GenerateClimateReport(schoolID, counts),
	})
}
