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
	ErrPostNotFound = fmt.Errorf("post not found")
)

type Post interface {
	CreatePost(post schema.Post) (*schema.Post, error)
	ListPosts(schoolID string, limit int64) ([]schema.Post, error)
	HeartPost(id string) (*schema.Post, error)
}

func (m *mongoDB) CreatePost(post schema.Post) (*schema.Post, error) {
	c := m.client.Database(m.database).Collection(schema.PostCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if post.Content == "" {
		return nil, fmt.Errorf("post content should not be empty")
	}

	post.ID = uuid.New().String()
	post.CreatedAt = time.Now().UTC()

	if _, err := c.InsertOne(ctx, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (m *mongoDB) ListPosts(schoolID string, limit int64) ([]schema.Post, error) {
	c := m.client.Database(m.database).Collection(schema.PostCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	opts := options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit)
	cursor, err := c.Find(ctx, bson.M{"school_id": schoolID}, opts)
	if err != nil {
		return nil, err
	}

	var posts []schema.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (m *mongoDB) HeartPost(id string) (*schema.Post, error) {
	c := m.client.Database(m.database).Collection(schema.PostCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var post schema.Post
	if err := c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"hearts": 1}}, opts).Decode(&post); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}
