package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

type Renewal interface {
	IssueRenewal(recordID string) (*schema.ConsentRecord, error)
	GetRenewalByCode(code string) (*schema.ConsentRecord, error)
	ApproveRenewal(code string, args ApproveConsentArgs) (*schema.ConsentRecord, error)
	DenyRenewal(code string) (*schema.ConsentRecord, error)
}

// IssueRenewal attaches a fresh renewal code to an approved record. The
// original record is otherwise untouched; approval of the renewal creates a
// new record rather than mutating this one.
func (m *mongoDB) IssueRenewal(recordID string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	code, err := newVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiry := now.Add(schema.ConsentLinkTTL)

	filter := bson.M{
		"_id":    recordID,
		"status": schema.ConsentStatusApproved,
	}
	update := bson.M{
		"$set": bson.M{
			"renewal_status":            schema.ConsentStatusPending,
			"renewal_verification_code": code,
			"renewal_expires_at":        expiry,
			"updated_at":                now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record schema.ConsentRecord
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyRenewalIssueFailure(ctx, recordID)
		}
		return nil, err
	}

	if err := m.AppendAuditEvent(schema.AuditEvent{
		Actor:     record.ParentEmail,
		ActorRole: schema.RoleParent,
		Action:    schema.AuditActionRenewalRequested,
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
	}); err != nil {
		return nil, err
	}

	return &record, nil
}

// GetRenewalByCode mirrors GetConsentByCode for the renewal code pair.
func (m *mongoDB) GetRenewalByCode(code string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"renewal_verification_code": code}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConsentNotFound
		}
		return nil, err
	}

	if record.RenewalStatus != schema.ConsentStatusPending {
		return nil, ErrCodeAlreadyUsed
	}
	if record.RenewalExpiresAt == nil || !time.Now().UTC().Before(*record.RenewalExpiresAt) {
		return nil, ErrLinkExpired
	}

	return &record, nil
}

// ApproveRenewal consumes the renewal code and writes a brand new immutable
// approved record superseding the old one, preserving full history. The old
// record only gets its renewal bookkeeping updated.
func (m *mongoDB) ApproveRenewal(code string, args ApproveConsentArgs) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if !args.FinalConsentConfirmed || len(args.SignerFullName) < 2 {
		return nil, ErrSignatureInputMissing
	}

	now := time.Now().UTC()

	filter := bson.M{
		"renewal_verification_code": code,
		"renewal_status":            schema.ConsentStatusPending,
		"status":                    schema.ConsentStatusApproved,
		"renewal_expires_at":        bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"renewal_status": schema.ConsentStatusApproved,
			"updated_at":     now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var prior schema.ConsentRecord
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&prior); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyRenewalFailure(ctx, code)
		}
		return nil, err
	}

	validUntil := now.Add(schema.RenewalValidity)

	renewed := schema.ConsentRecord{
		ID:                   uuid.New().String(),
		ParentName:           prior.ParentName,
		ParentEmail:          prior.ParentEmail,
		Relationship:         prior.Relationship,
		StudentID:            prior.StudentID,
		SchoolID:             prior.SchoolID,
		ConsentVersion:       prior.ConsentVersion,
		Status:               schema.ConsentStatusApproved,
		LinkExpiresAt:        now,
		IsCodeUsed:           true,
		IsImmutable:          true,
		Consent:              args.Consent,
		OptOut:               args.OptOut,
		SignerFullName:       args.SignerFullName,
		DigitalSignatureHash: args.SignatureHash,
		SignaturePayload:     args.SignaturePayload,
		SignatureTimestamp:   &args.SignatureTimestamp,
		SignatureMetadata:    args.SignatureMetadata,
		ValidUntil:           &validUntil,
		SupersedesConsentID:  prior.ID,
		CreatedAt:            now,
		UpdatedAt:            now,
		ApprovedAt:           &now,
	}

	if _, err := c.InsertOne(ctx, &renewed); err != nil {
		return nil, err
	}

	if err := m.SetStudentActive(renewed.StudentID, true); err != nil {
		log.WithError(err).WithField("student_id", renewed.StudentID).Error("fail to activate student after renewal")
	}

	if err := m.AppendAuditEvent(schema.AuditEvent{
		Actor:     renewed.ParentEmail,
		ActorRole: schema.RoleParent,
		Action:    schema.AuditActionRenewalApproved,
		ConsentID: renewed.ID,
		StudentID: renewed.StudentID,
		SchoolID:  renewed.SchoolID,
		Details: map[string]interface{}{
			"supersedes_consent_id": prior.ID,
			"signer_full_name":      renewed.SignerFullName,
		},
		IP:        metadataIP(args.SignatureMetadata),
		UserAgent: metadataUserAgent(args.SignatureMetadata),
	}); err != nil {
		return nil, err
	}

	return &renewed, nil
}

// DenyRenewal marks the renewal denied. The prior approval stands until its
// validity lapses; nothing else changes.
func (m *mongoDB) DenyRenewal(code string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	now := time.Now().UTC()

	filter := bson.M{
		"renewal_verification_code": code,
		"renewal_status":            schema.ConsentStatusPending,
		"renewal_expires_at":        bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"renewal_status": schema.ConsentStatusDenied,
			"updated_at":     now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record schema.ConsentRecord
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyRenewalFailure(ctx, code)
		}
		return nil, err
	}

	if err := m.AppendAuditEvent(schema.AuditEvent{
		Actor:     record.ParentEmail,
		ActorRole: schema.RoleParent,
		Action:    schema.AuditActionRenewalDenied,
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
	}); err != nil {
		return nil, err
	}

	return &record, nil
}

func (m *mongoDB) classifyRenewalIssueFailure(ctx context.Context, recordID string) error {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"_id": recordID}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrConsentNotFound
		}
		return err
	}
	return ErrConsentNotApproved
}

func (m *mongoDB) classifyRenewalFailure(ctx context.Context, code string) error {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"renewal_verification_code": code}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrConsentNotFound
		}
		return err
	}

	if record.RenewalStatus != schema.ConsentStatusPending {
		return ErrCodeAlreadyUsed
	}
	if record.RenewalExpiresAt == nil || !time.Now().UTC().Before(*record.RenewalExpiresAt) {
		return ErrLinkExpired
	}
	return ErrConsentNotFound
}
