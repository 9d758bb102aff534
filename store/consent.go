package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

var (
	ErrConsentNotFound       = fmt.Errorf("consent record not found")
	ErrLinkExpired           = fmt.Errorf("consent link expired")
	ErrCodeAlreadyUsed       = fmt.Errorf("consent code already used")
	ErrSignatureInputMissing = fmt.Errorf("signature input missing")
	ErrConsentNotApproved    = fmt.Errorf("consent record not approved")
	ErrParentEmailMismatch   = fmt.Errorf("parent email does not match record")
)

// codeIssueAttempts bounds retries when an insert collides on the unique
// verification-code index.
const codeIssueAttempts = 3

// ConsentRequest is the input for issuing a new consent record.
type ConsentRequest struct {
	ParentName     string
	ParentEmail    string
	Relationship   string
	StudentID      string
	SchoolID       string
	ConsentVersion string
	Consent        schema.ConsentFlags
	OptOut         schema.OptOutFlags
}

// ApproveConsentArgs carries the signing action. The signature hash and
// canonical payload are computed by the caller (which holds the signing
// secret); the store only persists them atomically with the transition.
type ApproveConsentArgs struct {
	SignerFullName        string
	FinalConsentConfirmed bool
	Consent               schema.ConsentFlags
	OptOut                schema.OptOutFlags
	SignatureHash         string
	SignaturePayload      string
	SignatureTimestamp    time.Time
	SignatureMetadata     *schema.SignatureMetadata
}

type Consent interface {
	IssueConsent(req ConsentRequest) (*schema.ConsentRecord, error)
	GetConsentByCode(code string) (*schema.ConsentRecord, error)
	GetConsentByID(id string) (*schema.ConsentRecord, error)
	GetLatestConsentByStudent(studentID string) (*schema.ConsentRecord, error)
	ApproveConsent(code string, args ApproveConsentArgs) (*schema.ConsentRecord, error)
	DenyConsent(code string) (*schema.ConsentRecord, error)
	RevokeConsent(parentEmail, recordID, reason string) (*schema.ConsentRecord, error)
}

// IssueConsent creates a pending record with a fresh single-use verification
// code and a 72-hour link expiry.
func (m *mongoDB) IssueConsent(req ConsentRequest) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if req.ParentEmail == "" || req.ParentName == "" || req.StudentID == "" {
		return nil, fmt.Errorf("parent name, parent email and student id are required")
	}

	now := time.Now().UTC()

	record := schema.ConsentRecord{
		ID:             uuid.New().String(),
		ParentName:     req.ParentName,
		ParentEmail:    req.ParentEmail,
		Relationship:   req.Relationship,
		StudentID:      req.StudentID,
		SchoolID:       req.SchoolID,
		ConsentVersion: req.ConsentVersion,
		Status:         schema.ConsentStatusPending,
		LinkExpiresAt:  now.Add(schema.ConsentLinkTTL),
		Consent:        req.Consent,
		OptOut:         req.OptOut,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 0; attempt < codeIssueAttempts; attempt++ {
		code, err := newVerificationCode()
		if err != nil {
			return nil, err
		}
		record.VerificationCode = code

		if _, err := c.InsertOne(ctx, &record); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				log.WithField("prefix", "store").Warn("verification code collision, regenerating")
				continue
			}
			return nil, err
		}

		if err := m.AppendAuditEvent(schema.AuditEvent{
			Actor:     req.ParentEmail,
			ActorRole: schema.RoleParent,
			Action:    schema.AuditActionConsentRequested,
			ConsentID: record.ID,
			StudentID: record.StudentID,
			SchoolID:  record.SchoolID,
			Details:   map[string]interface{}{"consent_version": record.ConsentVersion},
		}); err != nil {
			return nil, err
		}

		return &record, nil
	}

	return nil, fmt.Errorf("fail to issue a unique verification code")
}

// GetConsentByCode is a pure read: it never consumes the code. Expired and
// already-used codes are reported distinctly so callers can present the
// right message.
func (m *mongoDB) GetConsentByCode(code string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"verification_code": code}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConsentNotFound
		}
		return nil, err
	}

	if record.IsCodeUsed {
		return nil, ErrCodeAlreadyUsed
	}
	if record.LinkExpired(time.Now().UTC()) {
		return nil, ErrLinkExpired
	}

	return &record, nil
}

func (m *mongoDB) GetConsentByID(id string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"_id": id}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConsentNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetLatestConsentByStudent returns the most recent consent record for a
// student, renewals included.
func (m *mongoDB) GetLatestConsentByStudent(studentID string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	opts := options.FindOne().SetSort(bson.M{"created_at": -1})

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"student_id": studentID}, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConsentNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ApproveConsent consumes the code and freezes the record in a single
// conditional update. The filter only matches a pending, unused, unexpired
// code, so two racing approvals can never both succeed.
func (m *mongoDB) ApproveConsent(code string, args ApproveConsentArgs) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if !args.FinalConsentConfirmed || len(args.SignerFullName) < 2 {
		return nil, ErrSignatureInputMissing
	}

	now := time.Now().UTC()

	filter := bson.M{
		"verification_code": code,
		"status":            schema.ConsentStatusPending,
		"is_code_used":      false,
		"is_immutable":      false,
		"link_expires_at":   bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":                 schema.ConsentStatusApproved,
			"is_code_used":           true,
			"is_immutable":           true,
			"consent":                args.Consent,
			"opt_out":                args.OptOut,
			"signer_full_name":       args.SignerFullName,
			"digital_signature_hash": args.SignatureHash,
			"signature_payload":      args.SignaturePayload,
			"signature_ts":           args.SignatureTimestamp,
			"signature_metadata":     args.SignatureMetadata,
			"approved_at":            now,
			"updated_at":             now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record schema.ConsentRecord
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyConsentFailure(ctx, code)
		}
		return nil, err
	}

	if err := m.SetStudentActive(record.StudentID, true); err != nil {
		log.WithError(err).WithField("student_id", record.StudentID).Error("fail to activate student after approval")
	}

	if err := m.AppendAuditEvent(schema.AuditEvent{
		Actor:     record.ParentEmail,
		ActorRole: schema.RoleParent,
		Action:    schema.AuditActionConsentApproved,
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
		Details: map[string]interface{}{
			"signer_full_name": record.SignerFullName,
			"consent_version":  record.ConsentVersion,
		},
		IP:        metadataIP(args.SignatureMetadata),
		UserAgent: metadataUserAgent(args.SignatureMetadata),
	}); err != nil {
		return nil, err
	}

	return &record, nil
}

// DenyConsent consumes the code with the same conditional update shape as
// approval; the dependent student account stays inactive.
func (m *mongoDB) DenyConsent(code string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	now := time.Now().UTC()

	filter := bson.M{
		"verification_code": code,
		"status":            schema.ConsentStatusPending,
		"is_code_used":      false,
		"link_expires_at":   bson.M{"$gt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"status":       schema.ConsentStatusDenied,
			"is_code_used": true,
			"updated_at":   now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record schema.ConsentRecord
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyConsentFailure(ctx, code)
		}
		return nil, err
	}

	if err := m.AppendAuditEvent(schema.AuditEvent{
		Actor:     record.ParentEmail,
		ActorRole: schema.RoleParent,
		Action:    schema.AuditActionConsentDenied,
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
	}); err != nil {
		return nil, err
	}

	return &record, nil
}

// RevokeConsent is the only path allowed to change a decision after the
// record went immutable, and it is separately audited. The parent email
// ownership check is part of the update filter.
func (m *mongoDB) RevokeConsent(parentEmail, recordID, reason string) (*schema.ConsentRecord, error) {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	now := time.Now().UTC()

	filter := bson.M{
		"_id":          recordID,
		"status":       schema.ConsentStatusApproved,
		"parent_email": parentEmail,
	}
	update := bson.M{
		"$set": bson.M{
			"status":         schema.ConsentStatusRevoked,
			"revoked_reason": reason,
			"revoked_at":     now,
			"updated_at":     now,
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var record schema.ConsentRecord
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyRevokeFailure(ctx, recordID, parentEmail)
		}
		return nil, err
	}

	if err := m.SetStudentActive(record.StudentID, false); err != nil {
		log.WithError(err).WithField("student_id", record.StudentID).Error("fail to deactivate student after revocation")
	}

	if err := m.AppendAuditEvent(schema.AuditEvent{
		Actor:     parentEmail,
		ActorRole: schema.RoleParent,
		Action:    schema.AuditActionConsentRevoked,
		ConsentID: record.ID,
		StudentID: record.StudentID,
		SchoolID:  record.SchoolID,
		Details:   map[string]interface{}{"reason": reason},
	}); err != nil {
		return nil, err
	}

	return &record, nil
}

// classifyConsentFailure turns a no-match conditional update into the
// specific failure the caller must report.
func (m *mongoDB) classifyConsentFailure(ctx context.Context, code string) error {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"verification_code": code}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrConsentNotFound
		}
		return err
	}

	if record.IsCodeUsed || record.Status != schema.ConsentStatusPending {
		return ErrCodeAlreadyUsed
	}
	if record.LinkExpired(time.Now().UTC()) {
		return ErrLinkExpired
	}
	return ErrConsentNotFound
}

func (m *mongoDB) classifyRevokeFailure(ctx context.Context, recordID, parentEmail string) error {
	c := m.client.Database(m.database).Collection(schema.ConsentCollection)

	var record schema.ConsentRecord
	if err := c.FindOne(ctx, bson.M{"_id": recordID}).Decode(&record); err != nil {
		if err == mongo.ErrNoDocuments {
			return ErrConsentNotFound
		}
		return err
	}

	if record.ParentEmail != parentEmail {
		return ErrParentEmailMismatch
	}
	if record.Status != schema.ConsentStatusApproved {
		return ErrConsentNotApproved
	}
	return ErrConsentNotFound
}

func metadataIP(meta *schema.SignatureMetadata) string {
	if meta == nil {
		return ""
	}
	return meta.IP
}

func metadataUserAgent(meta *schema.SignatureMetadata) string {
	if meta == nil {
		return ""
	}
	return meta.UserAgent
}
