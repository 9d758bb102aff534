package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kindred-inc/kindred-api/schema"
)

func TestBuildConsentCSVRows(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	validUntil := time.Date(2027, 6, 1, 12, 0, 0, 0, time.UTC)

	records := []schema.ConsentRecord{
		{
			ID:             "rec-1",
			StudentID:      "student-1",
			ParentName:     "Jane Doe",
			Relationship:   "mother",
			Status:         schema.ConsentStatusApproved,
			ConsentVersion: "2026-v1",
			Consent: schema.ConsentFlags{
				DataCollection:     true,
				EducationalReports: true,
			},
			CreatedAt:  now.Add(-24 * time.Hour),
			ValidUntil: &validUntil,
		},
		{
			ID:            "rec-2",
			StudentID:     "student-2",
			ParentName:    "John Roe",
			Relationship:  "father",
			Status:        schema.ConsentStatusPending,
			LinkExpiresAt: now.Add(-time.Hour),
			CreatedAt:     now.Add(-80 * time.Hour),
		},
	}

	rows := buildConsentCSVRows(records, now)

	assert.Len(t, rows, 3)
	assert.Equal(t, "record_id", rows[0][0])

	assert.Equal(t, "rec-1", rows[1][0])
	assert.Equal(t, "approved", rows[1][4])
	assert.Equal(t, "data_collection;educational_reports", rows[1][6])
	assert.Equal(t, validUntil.Format(time.RFC3339), rows[1][8])

	// a lapsed pending record exports as expired
	assert.Equal(t, "expired", rows[2][4])
	assert.Equal(t, "", rows[2][6])
	assert.Equal(t, "", rows[2][8])
}

func TestBuildConsentCSVRowsNeverLeaksCodes(t *testing.T) {
	records := []schema.ConsentRecord{
		{
			ID:                   "rec-leak",
			VerificationCode:     "secret-code-value",
			DigitalSignatureHash: "secret-hash-value",
			SignaturePayload:     `{"secret":"payload"}`,
			Status:               schema.ConsentStatusApproved,
		},
	}

	for _, row := range buildConsentCSVRows(records, time.Now().UTC()) {
		for _, cell := range row {
			assert.NotContains(t, cell, "secret-code-value")
			assert.NotContains(t, cell, "secret-hash-value")
			assert.NotContains(t, cell, "secret-payload")
		}
	}
}

func TestGrantedFlags(t *testing.T) {
	assert.Empty(t, grantedFlags(schema.ConsentFlags{}))
	assert.Equal(t,
		[]string{"data_collection", "data_sharing", "email_communication", "educational_reports", "activity_tracking"},
		grantedFlags(schema.ConsentFlags{
			DataCollection:     true,
			DataSharing:        true,
			EmailCommunication: true,
			EducationalReports: true,
			ActivityTracking:   true,
		}),
	)
}
