package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

type ConsentTestSuite struct {
	suite.Suite
	connURI      string
	testDBName   string
	mongoClient  *mongo.Client
	testDatabase *mongo.Database
}

func NewConsentTestSuite(connURI, dbName string) *ConsentTestSuite {
	return &ConsentTestSuite{
		connURI:    connURI,
		testDBName: dbName,
	}
}

func (s *ConsentTestSuite) SetupSuite() {
	if s.connURI == "" || s.testDBName == "" {
		s.T().Fatal("invalid test suite configuration")
	}

	opts := options.Client().ApplyURI(s.connURI)
	mongoClient, err := mongo.NewClient(opts)
	if nil != err {
		s.T().Fatalf("create mongo client with error: %s", err)
	}

	if err = mongoClient.Connect(context.Background()); nil != err {
		s.T().Fatalf("connect mongo database with error: %s", err.Error())
	}

	s.mongoClient = mongoClient
	s.testDatabase = mongoClient.Database(s.testDBName)

	// make sure the test suite is run with a clean environment
	if err := s.CleanMongoDB(); err != nil {
		s.T().Fatal(err)
	}

	schema.NewMongoDBIndexer(s.connURI, s.testDBName).IndexAll()
}

// CleanMongoDB drop the whole test mongodb
func (s *ConsentTestSuite) CleanMongoDB() error {
	return s.testDatabase.Drop(context.Background())
}

func (s *ConsentTestSuite) store() KindredStore {
	return NewMongoStore(s.mongoClient, s.testDBName)
}

func (s *ConsentTestSuite) issueFor(studentID string) *schema.ConsentRecord {
	store := s.store()

	s.NoError(store.CreateStudent(schema.Student{
		ID:          studentID,
		DisplayName: "Test Student",
		SchoolID:    "school-1",
	}))

	record, err := store.IssueConsent(ConsentRequest{
		ParentName:     "Jane Doe",
		ParentEmail:    "jane@example.com",
		Relationship:   "mother",
		StudentID:      studentID,
		SchoolID:       "school-1",
		ConsentVersion: "2026-v1",
		Consent: schema.ConsentFlags{
			DataCollection:     true,
			EmailCommunication: true,
		},
	})
	s.NoError(err)
	s.NotNil(record)
	return record
}

// expireLink rewinds a record's link expiry so expiry behavior can be tested
// without waiting.
func (s *ConsentTestSuite) expireLink(recordID string, to time.Time) {
	_, err := s.testDatabase.Collection(schema.ConsentCollection).UpdateOne(
		context.Background(),
		bson.M{"_id": recordID},
		bson.M{"$set": bson.M{"link_expires_at": to}},
	)
	s.NoError(err)
}

func (s *ConsentTestSuite) approveArgs() ApproveConsentArgs {
	return ApproveConsentArgs{
		SignerFullName:        "Jane Doe",
		FinalConsentConfirmed: true,
		Consent: schema.ConsentFlags{
			DataCollection:     true,
			EmailCommunication: true,
		},
		SignatureHash:      "deadbeef",
		SignaturePayload:   `{"test":"payload"}`,
		SignatureTimestamp: time.Now().UTC(),
		SignatureMetadata:  &schema.SignatureMetadata{IP: "203.0.113.57", UserAgent: "test-agent"},
	}
}

func (s *ConsentTestSuite) countAuditEvents(consentID string, action schema.AuditAction) int64 {
	count, err := s.testDatabase.Collection(schema.AuditEventCollection).CountDocuments(
		context.Background(),
		bson.M{"consent_id": consentID, "action": action},
	)
	s.NoError(err)
	return count
}

func (s *ConsentTestSuite) TestIssueConsent() {
	record := s.issueFor("student-issue")

	s.Equal(schema.ConsentStatusPending, record.Status)
	s.Len(record.VerificationCode, verificationCodeLength)
	s.False(record.IsCodeUsed)
	s.False(record.IsImmutable)
	s.WithinDuration(time.Now().UTC().Add(schema.ConsentLinkTTL), record.LinkExpiresAt, time.Minute)
	s.Equal(int64(1), s.countAuditEvents(record.ID, schema.AuditActionConsentRequested))
}

func (s *ConsentTestSuite) TestGetConsentByCodeDoesNotConsume() {
	record := s.issueFor("student-lookup")
	store := s.store()

	for i := 0; i < 3; i++ {
		found, err := store.GetConsentByCode(record.VerificationCode)
		s.NoError(err)
		s.Equal(record.ID, found.ID)
		s.False(found.IsCodeUsed)
	}
}

func (s *ConsentTestSuite) TestGetConsentByUnknownCode() {
	_, err := s.store().GetConsentByCode("no-such-code")
	s.ErrorIs(err, ErrConsentNotFound)
}

func (s *ConsentTestSuite) TestApproveConsent() {
	record := s.issueFor("student-approve")
	store := s.store()

	approved, err := store.ApproveConsent(record.VerificationCode, s.approveArgs())
	s.NoError(err)
	s.Equal(schema.ConsentStatusApproved, approved.Status)
	s.True(approved.IsCodeUsed)
	s.True(approved.IsImmutable)
	s.NotNil(approved.ApprovedAt)
	s.Equal("Jane Doe", approved.SignerFullName)
	s.Equal("deadbeef", approved.DigitalSignatureHash)

	student, err := store.GetStudent("student-approve")
	s.NoError(err)
	s.True(student.Active)

	s.Equal(int64(1), s.countAuditEvents(record.ID, schema.AuditActionConsentApproved))
}

func (s *ConsentTestSuite) TestApproveConsentTwice() {
	record := s.issueFor("student-approve-twice")
	store := s.store()

	_, err := store.ApproveConsent(record.VerificationCode, s.approveArgs())
	s.NoError(err)

	_, err = store.ApproveConsent(record.VerificationCode, s.approveArgs())
	s.ErrorIs(err, ErrCodeAlreadyUsed)

	s.Equal(int64(1), s.countAuditEvents(record.ID, schema.AuditActionConsentApproved))
}

func (s *ConsentTestSuite) TestApproveConsentWithoutConfirmation() {
	record := s.issueFor("student-no-confirm")

	args := s.approveArgs()
	args.FinalConsentConfirmed = false

	_, err := s.store().ApproveConsent(record.VerificationCode, args)
	s.ErrorIs(err, ErrSignatureInputMissing)
}

func (s *ConsentTestSuite) TestApproveConsentWithShortSigner() {
	record := s.issueFor("student-short-signer")

	args := s.approveArgs()
	args.SignerFullName = "J"

	_, err := s.store().ApproveConsent(record.VerificationCode, args)
	s.ErrorIs(err, ErrSignatureInputMissing)
}

func (s *ConsentTestSuite) TestApproveExpiredLink() {
	record := s.issueFor("student-expired")
	s.expireLink(record.ID, time.Now().UTC().Add(-time.Hour))

	_, err := s.store().ApproveConsent(record.VerificationCode, s.approveArgs())
	s.ErrorIs(err, ErrLinkExpired)

	// no state change
	var stored schema.ConsentRecord
	s.NoError(s.testDatabase.Collection(schema.ConsentCollection).
		FindOne(context.Background(), bson.M{"_id": record.ID}).Decode(&stored))
	s.Equal(schema.ConsentStatusPending, stored.Status)
	s.False(stored.IsCodeUsed)

	student, err := s.store().GetStudent("student-expired")
	s.NoError(err)
	s.False(student.Active)
}

func (s *ConsentTestSuite) TestExpiryBoundaryIsInclusive() {
	record := s.issueFor("student-boundary")

	// pin expiry to (approximately) now; equality must read as expired
	now := time.Now().UTC()
	s.expireLink(record.ID, now)

	_, err := s.store().ApproveConsent(record.VerificationCode, s.approveArgs())
	s.ErrorIs(err, ErrLinkExpired)

	_, err = s.store().GetConsentByCode(record.VerificationCode)
	s.ErrorIs(err, ErrLinkExpired)
}

func (s *ConsentTestSuite) TestDenyConsent() {
	record := s.issueFor("student-deny")
	store := s.store()

	denied, err := store.DenyConsent(record.VerificationCode)
	s.NoError(err)
	s.Equal(schema.ConsentStatusDenied, denied.Status)
	s.True(denied.IsCodeUsed)
	s.Nil(denied.ApprovedAt)

	student, err := store.GetStudent("student-deny")
	s.NoError(err)
	s.False(student.Active)

	s.Equal(int64(1), s.countAuditEvents(record.ID, schema.AuditActionConsentDenied))
}

func (s *ConsentTestSuite) TestDenyThenApprove() {
	record := s.issueFor("student-deny-approve")
	store := s.store()

	_, err := store.DenyConsent(record.VerificationCode)
	s.NoError(err)

	_, err = store.ApproveConsent(record.VerificationCode, s.approveArgs())
	s.ErrorIs(err, ErrCodeAlreadyUsed)
}

func (s *ConsentTestSuite) TestRevokeConsent() {
	record := s.issueFor("student-revoke")
	store := s.store()

	_, err := store.ApproveConsent(record.VerificationCode, s.approveArgs())
	s.NoError(err)

	revoked, err := store.RevokeConsent("jane@example.com", record.ID, "changed mind")
	s.NoError(err)
	s.Equal(schema.ConsentStatusRevoked, revoked.Status)
	s.Equal("changed mind", revoked.RevokedReason)
	s.NotNil(revoked.RevokedAt)

	student, err := store.GetStudent("student-revoke")
	s.NoError(err)
	s.False(student.Active)

	// the original approval event stays in the trail unmodified
	s.Equal(int64(1), s.countAuditEvents(record.ID, schema.AuditActionConsentApproved))
	s.Equal(int64(1), s.countAuditEvents(record.ID, schema.AuditActionConsentRevoked))
}

func (s *ConsentTestSuite) TestRevokeConsentEmailMismatch() {
	record := s.issueFor("student-revoke-mismatch")
	store := s.store()

	_, err := store.ApproveConsent(record.VerificationCode, s.approveArgs())
	s.NoError(err)

	_, err = store.RevokeConsent("stranger@example.com", record.ID, "nope")
	s.ErrorIs(err, ErrParentEmailMismatch)
}

func (s *ConsentTestSuite) TestRevokePendingConsent() {
	record := s.issueFor("student-revoke-pending")

	_, err := s.store().RevokeConsent("jane@example.com", record.ID, "too early")
	s.ErrorIs(err, ErrConsentNotApproved)
}

func (s *ConsentTestSuite) TestConcurrentApprovalsRaceOnce() {
	record := s.issueFor("student-race")
	store := s.store()

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.ApproveConsent(record.VerificationCode, s.approveArgs())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, ErrCodeAlreadyUsed)
		}
	}
	s.Equal(1, succeeded)

	// exactly one approval event in the trail
	s.Equal(int64(1), s.countAuditEvents(record.ID, schema.AuditActionConsentApproved))
}

func (s *ConsentTestSuite) TestImmutableRecordRejectsCodePath() {
	record := s.issueFor("student-immutable")
	store := s.store()

	approved, err := store.ApproveConsent(record.VerificationCode, s.approveArgs())
	s.NoError(err)
	s.True(approved.IsImmutable)

	_, err = store.DenyConsent(record.VerificationCode)
	s.ErrorIs(err, ErrCodeAlreadyUsed)

	// stored decision fields are untouched
	var stored schema.ConsentRecord
	s.NoError(s.testDatabase.Collection(schema.ConsentCollection).
		FindOne(context.Background(), bson.M{"_id": record.ID}).Decode(&stored))
	s.Equal(schema.ConsentStatusApproved, stored.Status)
	s.True(stored.Consent.DataCollection)
}

func (s *ConsentTestSuite) TestCodeUsedImpliesNotPending() {
	// issue a handful of records, push them through different transitions,
	// then check the invariant over the whole collection
	r1 := s.issueFor("student-inv-1")
	r2 := s.issueFor("student-inv-2")
	s.issueFor("student-inv-3")
	store := s.store()

	_, err := store.ApproveConsent(r1.VerificationCode, s.approveArgs())
	s.NoError(err)
	_, err = store.DenyConsent(r2.VerificationCode)
	s.NoError(err)

	cursor, err := s.testDatabase.Collection(schema.ConsentCollection).Find(
		context.Background(),
		bson.M{"is_code_used": true},
	)
	s.NoError(err)

	var used []schema.ConsentRecord
	s.NoError(cursor.All(context.Background(), &used))
	for _, record := range used {
		s.NotEqual(schema.ConsentStatusPending, record.Status)
	}
}

func TestConsentTestSuite(t *testing.T) {
	suite.Run(t, NewConsentTestSuite("mongodb://127.0.0.1:27017/?compressors=disabled", "consent-test-db"))
}
