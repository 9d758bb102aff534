package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

func TestNormalizeClaimCode(t *testing.T) {
	assert.Equal(t, "abcd2345", NormalizeClaimCode("  ABCD2345 "))
	assert.Equal(t, "abcd2345", NormalizeClaimCode("abcd2345"))
}

type ClaimCodeTestSuite struct {
	suite.Suite
	connURI      string
	testDBName   string
	mongoClient  *mongo.Client
	testDatabase *mongo.Database
}

func NewClaimCodeTestSuite(connURI, dbName string) *ClaimCodeTestSuite {
	return &ClaimCodeTestSuite{
		connURI:    connURI,
		testDBName: dbName,
	}
}

func (s *ClaimCodeTestSuite) SetupSuite() {
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
func (s *ClaimCodeTestSuite) CleanMongoDB() error {
	return s.testDatabase.Drop(context.Background())
}

func (s *ClaimCodeTestSuite) store() KindredStore {
	return NewMongoStore(s.mongoClient, s.testDBName)
}

func (s *ClaimCodeTestSuite) TestIssueAndRedeem() {
	store := s.store()

	claim, err := store.IssueClaimCode("school-claim", "teacher-1", 2, time.Hour)
	s.NoError(err)
	s.Len(claim.Code, claimCodeLength)

	student, err := store.RedeemClaimCode(claim.Code, "New Student")
	s.NoError(err)
	s.Equal("school-claim", student.SchoolID)

	// student starts inactive; consent approval is what activates it
	s.False(student.Active)
}

func (s *ClaimCodeTestSuite) TestRedeemIsCaseInsensitive() {
	store := s.store()

	claim, err := store.IssueClaimCode("school-claim-case", "teacher-1", 1, time.Hour)
	s.NoError(err)

	_, err = store.RedeemClaimCode("  "+claim.Code+" ", "Spaced Student")
	s.NoError(err)
}

func (s *ClaimCodeTestSuite) TestRedeemExhaustedCode() {
	store := s.store()

	claim, err := store.IssueClaimCode("school-claim-max", "teacher-1", 1, time.Hour)
	s.NoError(err)

	_, err = store.RedeemClaimCode(claim.Code, "First")
	s.NoError(err)

	_, err = store.RedeemClaimCode(claim.Code, "Second")
	s.ErrorIs(err, ErrClaimCodeExhausted)
}

func (s *ClaimCodeTestSuite) TestReleaseRestoresConsumedUse() {
	store := s.store()

	claim, err := store.IssueClaimCode("school-claim-release", "teacher-1", 1, time.Hour)
	s.NoError(err)

	_, err = store.RedeemClaimCode(claim.Code, "Only Use")
	s.NoError(err)

	_, err = store.RedeemClaimCode(claim.Code, "Too Late")
	s.ErrorIs(err, ErrClaimCodeExhausted)

	// the error branch of redemption hands the use back; a redeem must then
	// succeed again rather than leaving the code burned with no student
	m := store.(*mongoDB)
	m.releaseClaimCodeUse(context.Background(), claim.Code)

	_, err = store.RedeemClaimCode(claim.Code, "Second Chance")
	s.NoError(err)
}

func (s *ClaimCodeTestSuite) TestReleaseNeverGoesNegative() {
	store := s.store()

	claim, err := store.IssueClaimCode("school-claim-floor", "teacher-1", 1, time.Hour)
	s.NoError(err)

	m := store.(*mongoDB)
	m.releaseClaimCodeUse(context.Background(), claim.Code)

	var stored schema.ClaimCode
	err = s.testDatabase.Collection(schema.ClaimCodeCollection).
		FindOne(context.Background(), bson.M{"_id": claim.Code}).Decode(&stored)
	s.NoError(err)
	s.Equal(0, stored.Uses)
}

func (s *ClaimCodeTestSuite) TestRedeemUnknownCode() {
	_, err := s.store().RedeemClaimCode("zzzzzzzz", "Nobody")
	s.ErrorIs(err, ErrClaimCodeNotFound)
}

func TestClaimCodeTestSuite(t *testing.T) {
	suite.Run(t, NewClaimCodeTestSuite("mongodb://127.0.0.1:27017/?compressors=disabled", "claim-code-test-db"))
}
