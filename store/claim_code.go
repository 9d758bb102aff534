package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

var (
	ErrClaimCodeNotFound  = fmt.Errorf("claim code not found")
	ErrClaimCodeExhausted = fmt.Errorf("claim code exhausted or expired")
)

// claimCodeLength keeps teacher-issued codes short enough to write on a
// whiteboard.
const claimCodeLength = 8

type ClaimCode interface {
	IssueClaimCode(schoolID, issuedBy string, maxUses int, ttl time.Duration) (*schema.ClaimCode, error)
	RedeemClaimCode(code, displayName string) (*schema.Student, error)
}

// IssueClaimCode creates a short-lived registration code for a school.
func (m *mongoDB) IssueClaimCode(schoolID, issuedBy string, maxUses int, ttl time.Duration) (*schema.ClaimCode, error) {
	c := m.client.Database(m.database).Collection(schema.ClaimCodeCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if maxUses <= 0 {
		maxUses = 1
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	now := time.Now().UTC()

	for attempt := 0; attempt < codeIssueAttempts; attempt++ {
		code, err := newVerificationCode()
		if err != nil {
			return nil, err
		}

		claim := schema.ClaimCode{
			Code:      NormalizeClaimCode(code[:claimCodeLength]),
			SchoolID:  schoolID,
			IssuedBy:  issuedBy,
			MaxUses:   maxUses,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}

		if _, err := c.InsertOne(ctx, &claim); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return nil, err
		}
		return &claim, nil
	}

	return nil, fmt.Errorf("fail to issue a unique claim code")
}

// RedeemClaimCode consumes one use and creates an inactive student in the
// code's school. The use count is a conditional increment so a code can never
// exceed its max uses under concurrent redemption. The student stays
// inactive until the parental consent workflow approves it.
func (m *mongoDB) RedeemClaimCode(code, displayName string) (*schema.Student, error) {
	c := m.client.Database(m.database).Collection(schema.ClaimCodeCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	now := time.Now().UTC()

	filter := bson.M{
		"_id":        NormalizeClaimCode(code),
		"expires_at": bson.M{"$gt": now},
		"$expr":      bson.M{"$lt": bson.A{"$uses", "$max_uses"}},
	}
	update := bson.M{"$inc": bson.M{"uses": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var claim schema.ClaimCode
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&claim); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyClaimFailure(ctx, code)
		}
		return nil, err
	}

	student := schema.Student{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		SchoolID:    claim.SchoolID,
		Active:      false,
		CreatedAt:   now,
	}
	if err := m.CreateStudent(student); err != nil {
		// give the use back so a storage hiccup does not burn the code
		m.releaseClaimCodeUse(ctx, claim.Code)
		return nil, err
	}

	return &student, nil
}

func (m *mongoDB) releaseClaimCodeUse(ctx context.Context, code string) {
	c := m.client.Database(m.database).Collection(schema.ClaimCodeCollection)

	filter := bson.M{"_id": NormalizeClaimCode(code), "uses": bson.M{"$gt": 0}}
	if _, err := c.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"uses": -1}}); err != nil {
		log.WithError(err).WithField("code", NormalizeClaimCode(code)).Error("fail to release claim code use")
	}
}

func (m *mongoDB) classifyClaimFailure(ctx context.Context, code string) error {
	c := m.client.Database(m.database).Collection(schema.ClaimCodeCollection)

	count, err := c.CountDocuments(ctx, bson.M{"_id": NormalizeClaimCode(code)})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrClaimCodeNotFound
	}
	return ErrClaimCodeExhausted
}

// NormalizeClaimCode makes hand-typed codes forgiving: trims whitespace and
// lowercases, matching how codes are issued.
func NormalizeClaimCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
