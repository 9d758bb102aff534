package schema

import "time"

const (
	StaffAccountCollection = "staffAccounts"
)

// StaffAccount is a teacher or admin login. Students and parents never hold
// accounts here; parents act through verification links only.
type StaffAccount struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Role         ActorRole `json:"role" bson:"role"`
	SchoolID     string    `json:"school_id" bson:"school_id"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}
