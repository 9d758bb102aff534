package schema

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBIndexer builds the indexes every collection relies on. The unique
// sparse indexes on verification codes are what make code issuance unique
// among currently-live codes.
type MongoDBIndexer struct {
	connURI  string
	database string
}

func NewMongoDBIndexer(connURI, database string) *MongoDBIndexer {
	return &MongoDBIndexer{
		connURI:  connURI,
		database: database,
	}
}

func (m *MongoDBIndexer) IndexAll() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.connURI))
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)

	db := client.Database(m.database)

	unique := options.Index().SetUnique(true).SetSparse(true)

	indexes := map[string][]mongo.IndexModel{
		ConsentCollection: {
			{Keys: bson.D{{Key: "verification_code", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "renewal_verification_code", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "student_id", Value: 1}}},
			{Keys: bson.D{{Key: "school_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		AuditEventCollection: {
			{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "ts", Value: -1}}},
			{Keys: bson.D{{Key: "consent_id", Value: 1}}},
		},
		StudentCollection: {
			{Keys: bson.D{{Key: "school_id", Value: 1}}},
		},
		PostCollection: {
			{Keys: bson.D{{Key: "school_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		TokenTransactionCollection: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "ts", Value: -1}}},
		},
		StaffAccountCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			log.WithError(err).WithField("collection", collection).Error("fail to create indexes")
			return err
		}
	}

	return nil
}
