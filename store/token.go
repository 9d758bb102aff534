package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kindred-inc/kindred-api/schema"
)

var (
	ErrInsufficientBalance = fmt.Errorf("insufficient token balance")
	ErrInvalidTokenAmount  = fmt.Errorf("token amount must be positive")
	ErrTokenAccountMissing = fmt.Errorf("token account not found")
)

type Token interface {
	AwardTokens(owner, schoolID string, amount int64, reason string) (*schema.TokenAccount, error)
	RedeemTokens(owner, rewardID string, amount int64) (*schema.TokenAccount, error)
	GetTokenBalance(owner string) (*schema.TokenAccount, error)
	ListTokenTransactions(owner string, limit int64) ([]schema.TokenTransaction, error)
}

// AwardTokens credits an account, creating it on first award.
func (m *mongoDB) AwardTokens(owner, schoolID string, amount int64, reason string) (*schema.TokenAccount, error) {
	c := m.client.Database(m.database).Collection(schema.TokenAccountCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if amount <= 0 {
		return nil, ErrInvalidTokenAmount
	}

	now := time.Now().UTC()

	filter := bson.M{"_id": owner}
	update := bson.M{
		"$inc":         bson.M{"balance": amount},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"school_id": schoolID},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var account schema.TokenAccount
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&account); err != nil {
		return nil, err
	}

	if err := m.appendTokenTransaction(ctx, schema.TokenTransaction{
		Owner:  owner,
		Type:   schema.TokenAwarded,
		Amount: amount,
		Reason: reason,
	}); err != nil {
		return nil, err
	}

	return &account, nil
}

// RedeemTokens deducts from the balance with a conditional update: the
// filter requires balance >= amount, so two concurrent redemptions can never
// overdraw the account.
func (m *mongoDB) RedeemTokens(owner, rewardID string, amount int64) (*schema.TokenAccount, error) {
	c := m.client.Database(m.database).Collection(schema.TokenAccountCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if amount <= 0 {
		return nil, ErrInvalidTokenAmount
	}

	now := time.Now().UTC()

	filter := bson.M{
		"_id":     owner,
		"balance": bson.M{"$gte": amount},
	}
	update := bson.M{
		"$inc": bson.M{"balance": -amount},
		"$set": bson.M{"updated_at": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var account schema.TokenAccount
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&account); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, m.classifyRedeemFailure(ctx, owner)
		}
		return nil, err
	}

	if err := m.appendTokenTransaction(ctx, schema.TokenTransaction{
		Owner:    owner,
		Type:     schema.TokenRedeemed,
		Amount:   amount,
		RewardID: rewardID,
	}); err != nil {
		return nil, err
	}

	return &account, nil
}

func (m *mongoDB) GetTokenBalance(owner string) (*schema.TokenAccount, error) {
	c := m.client.Database(m.database).Collection(schema.TokenAccountCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var account schema.TokenAccount
	if err := c.FindOne(ctx, bson.M{"_id": owner}).Decode(&account); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrTokenAccountMissing
		}
		return nil, err
	}
	return &account, nil
}

func (m *mongoDB) ListTokenTransactions(owner string, limit int64) ([]schema.TokenTransaction, error) {
	c := m.client.Database(m.database).Collection(schema.TokenTransactionCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	opts := options.Find().SetSort(bson.M{"ts": -1}).SetLimit(limit)
	cursor, err := c.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, err
	}

	var transactions []schema.TokenTransaction
	if err := cursor.All(ctx, &transactions); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (m *mongoDB) appendTokenTransaction(ctx context.Context, tx schema.TokenTransaction) error {
	c := m.client.Database(m.database).Collection(schema.TokenTransactionCollection)

	tx.ID = uuid.New().String()
	tx.CreatedAt = time.Now().UTC()

	_, err := c.InsertOne(ctx, &tx)
	return err
}

func (m *mongoDB) classifyRedeemFailure(ctx context.Context, owner string) error {
	c := m.client.Database(m.database).Collection(schema.TokenAccountCollection)

	count, err := c.CountDocuments(ctx, bson.M{"_id": owner})
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrTokenAccountMissing
	}
	return ErrInsufficientBalance
}
