package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kindred-inc/kindred-api/schema"
)

var (
	ErrAccountNotFound = fmt.Errorf("staff account not found")
)

type StaffAccount interface {
	CreateStaffAccount(account schema.StaffAccount) error
	GetStaffAccountByEmail(email string) (*schema.StaffAccount, error)
}

func (m *mongoDB) CreateStaffAccount(account schema.StaffAccount) error {
	c := m.client.Database(m.database).Collection(schema.StaffAccountCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := c.InsertOne(ctx, &account)
	return err
}

func (m *mongoDB) GetStaffAccountByEmail(email string) (*schema.StaffAccount, error) {
	c := m.client.Database(m.database).Collection(schema.StaffAccountCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var account schema.StaffAccount
	if err := c.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&account); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}
