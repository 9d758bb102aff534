package store

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var defaultTimeout = 5 * time.Second

// KindredStore is the full persistence surface the API server consumes.
type KindredStore interface {
	Consent
	Renewal
	Audit
	Student
	School
	Token
	Post
	ClaimCode
	StaffAccount
	Ping() error
	Close()
}

type mongoDB struct {
	client   *mongo.Client
	database string
}

// NewMongoStore returns a store backed by the given mongo client.
func NewMongoStore(client *mongo.Client, database string) KindredStore {
	return &mongoDB{
		client:   client,
		database: database,
	}
}

// NewMongoClient dials mongodb and pings it once to fail fast on a bad URI.
func NewMongoClient(connURI string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connURI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	return client, nil
}

func (m *mongoDB) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoDB) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		log.WithError(err).Error("fail to disconnect from mongodb")
	}
}
