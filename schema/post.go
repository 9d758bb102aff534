package schema

import "time"

const (
	PostCollection = "posts"
)

// Post is an anonymous kindness post. AuthorID is kept for moderation but
// never serialized to clients.
type Post struct {
	ID        string    `json:"id" bson:"_id"`
	SchoolID  string    `json:"school_id" bson:"school_id"`
	AuthorID  string    `json:"-" bson:"author_id"`
	Category  string    `json:"category" bson:"category"`
	Content   string    `json:"content" bson:"content"`
	Hearts    int       `json:"hearts" bson:"hearts"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
