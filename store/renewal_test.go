package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

type RenewalTestSuite struct {
	suite.Suite
	connURI      string
	testDBName   string
	mongoClient  *mongo.Client
	testDatabase *mongo.Database
}

func NewRenewalTestSuite(connURI, dbName string) *RenewalTestSuite {
	return &RenewalTestSuite{
		connURI:    connURI,
		testDBName: dbName,
	}
}

func (s *RenewalTestSuite) SetupSuite() {
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
func (s *RenewalTestSuite) CleanMongoDB() error {
	return s.testDatabase.Drop(context.Background())
}

func (s *RenewalTestSuite) store() KindredStore {
	return NewMongoStore(s.mongoClient, s.testDBName)
}

// approvedRecord issues and approves a consent so renewal tests start from
// the only state renewals are legal in.
func (s *RenewalTestSuite) approvedRecord(studentID string) *schema.ConsentRecord {
	store := s.store()

	s.NoError(store.CreateStudent(schema.Student{
		ID:          studentID,
		DisplayName: "Renewal Student",
		SchoolID:    "school-1",
	}))

	record, err := store.IssueConsent(ConsentRequest{
		ParentName:     "Jane Doe",
		ParentEmail:    "jane@example.com",
		Relationship:   "mother",
		StudentID:      studentID,
		SchoolID:       "school-1",
		ConsentVersion: "2026-v1",
		Consent:        schema.ConsentFlags{DataCollection: true},
	})
	s.NoError(err)

	approved, err := store.ApproveConsent(record.VerificationCode, ApproveConsentArgs{
		SignerFullName:        "Jane Doe",
		FinalConsentConfirmed: true,
		Consent:               schema.ConsentFlags{DataCollection: true},
		SignatureHash:         "cafebabe",
		SignaturePayload:      `{"p":1}`,
		SignatureTimestamp:    time.Now().UTC(),
	})
	s.NoError(err)
	return approved
}

func (s *RenewalTestSuite) renewalArgs() ApproveConsentArgs {
	return ApproveConsentArgs{
		SignerFullName:        "Jane Doe",
		FinalConsentConfirmed: true,
		Consent:               schema.ConsentFlags{DataCollection: true, EducationalReports: true},
		SignatureHash:         "feedface",
		SignaturePayload:      `{"p":2}`,
		SignatureTimestamp:    time.Now().UTC(),
	}
}

func (s *RenewalTestSuite) TestIssueRenewal() {
	record := s.approvedRecord("renewal-student-issue")
	store := s.store()

	renewed, err := store.IssueRenewal(record.ID)
	s.NoError(err)
	s.Equal(schema.ConsentStatusPending, renewed.RenewalStatus)
	s.NotEmpty(renewed.RenewalVerificationCode)
	s.NotNil(renewed.RenewalExpiresAt)
	s.WithinDuration(time.Now().UTC().Add(schema.ConsentLinkTTL), *renewed.RenewalExpiresAt, time.Minute)
}

func (s *RenewalTestSuite) TestIssueRenewalForPendingRecord() {
	store := s.store()

	s.NoError(store.CreateStudent(schema.Student{
		ID:       "renewal-student-pending",
		SchoolID: "school-1",
	}))
	record, err := store.IssueConsent(ConsentRequest{
		ParentName:  "Jane Doe",
		ParentEmail: "jane@example.com",
		StudentID:   "renewal-student-pending",
		SchoolID:    "school-1",
	})
	s.NoError(err)

	_, err = store.IssueRenewal(record.ID)
	s.ErrorIs(err, ErrConsentNotApproved)
}

func (s *RenewalTestSuite) TestApproveRenewalCreatesNewRecord() {
	record := s.approvedRecord("renewal-student-approve")
	store := s.store()

	issued, err := store.IssueRenewal(record.ID)
	s.NoError(err)

	renewed, err := store.ApproveRenewal(issued.RenewalVerificationCode, s.renewalArgs())
	s.NoError(err)

	// a new immutable record supersedes the old one
	s.NotEqual(record.ID, renewed.ID)
	s.Equal(record.ID, renewed.SupersedesConsentID)
	s.Equal(schema.ConsentStatusApproved, renewed.Status)
	s.True(renewed.IsImmutable)
	s.NotNil(renewed.ValidUntil)
	s.WithinDuration(time.Now().UTC().Add(schema.RenewalValidity), *renewed.ValidUntil, time.Minute)

	// the old record keeps its approval history
	prior, err := store.GetConsentByID(record.ID)
	s.NoError(err)
	s.Equal(schema.ConsentStatusApproved, prior.Status)
	s.Equal(schema.ConsentStatusApproved, prior.RenewalStatus)
	s.Equal("cafebabe", prior.DigitalSignatureHash)
}

func (s *RenewalTestSuite) TestApproveRenewalTwice() {
	record := s.approvedRecord("renewal-student-twice")
	store := s.store()

	issued, err := store.IssueRenewal(record.ID)
	s.NoError(err)

	_, err = store.ApproveRenewal(issued.RenewalVerificationCode, s.renewalArgs())
	s.NoError(err)

	_, err = store.ApproveRenewal(issued.RenewalVerificationCode, s.renewalArgs())
	s.ErrorIs(err, ErrCodeAlreadyUsed)
}

func (s *RenewalTestSuite) TestApproveExpiredRenewal() {
	record := s.approvedRecord("renewal-student-expired")
	store := s.store()

	issued, err := store.IssueRenewal(record.ID)
	s.NoError(err)

	_, err = s.testDatabase.Collection(schema.ConsentCollection).UpdateOne(
		context.Background(),
		bson.M{"_id": record.ID},
		bson.M{"$set": bson.M{"renewal_expires_at": time.Now().UTC().Add(-time.Hour)}},
	)
	s.NoError(err)

	_, err = store.ApproveRenewal(issued.RenewalVerificationCode, s.renewalArgs())
	s.ErrorIs(err, ErrLinkExpired)
}

func (s *RenewalTestSuite) TestDenyRenewal() {
	record := s.approvedRecord("renewal-student-deny")
	store := s.store()

	issued, err := store.IssueRenewal(record.ID)
	s.NoError(err)

	denied, err := store.DenyRenewal(issued.RenewalVerificationCode)
	s.NoError(err)
	s.Equal(schema.ConsentStatusDenied, denied.RenewalStatus)

	// the prior approval itself still stands
	s.Equal(schema.ConsentStatusApproved, denied.Status)
}

func (s *RenewalTestSuite) TestGetRenewalByCode() {
	record := s.approvedRecord("renewal-student-lookup")
	store := s.store()

	issued, err := store.IssueRenewal(record.ID)
	s.NoError(err)

	found, err := store.GetRenewalByCode(issued.RenewalVerificationCode)
	s.NoError(err)
	s.Equal(record.ID, found.ID)

	_, err = store.GetRenewalByCode("no-such-renewal-code")
	s.ErrorIs(err, ErrConsentNotFound)
}

func TestRenewalTestSuite(t *testing.T) {
	suite.Run(t, NewRenewalTestSuite("mongodb://127.0.0.1:27017/?compressors=disabled", "renewal-test-db"))
}
