package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kindred-inc/kindred-api/schema"
)

var (
	ErrStudentNotFound = fmt.Errorf("student not found")
)

type Student interface {
	CreateStudent(student schema.Student) error
	GetStudent(id string) (*schema.Student, error)
	SetStudentActive(id string, active bool) error
}

func (m *mongoDB) CreateStudent(student schema.Student) error {
	c := m.client.Database(m.database).Collection(schema.StudentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}

	_, err := c.InsertOne(ctx, &student)
	return err
}

func (m *mongoDB) GetStudent(id string) (*schema.Student, error) {
	c := m.client.Database(m.database).Collection(schema.StudentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var student schema.Student
	if err := c.FindOne(ctx, bson.M{"_id": id}).Decode(&student); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return &student, nil
}

// SetStudentActive toggles account activation. Activation only ever follows
// an approved consent; deactivation follows revocation.
func (m *mongoDB) SetStudentActive(id string, active bool) error {
	c := m.client.Database(m.database).Collection(schema.StudentCollection)
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	set := bson.M{"active": active}
	if active {
		set["activated_at"] = now
	}

	result, err := c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrStudentNotFound
	}
	return nil
}
