package schema

import "time"

const (
	StudentCollection = "students"
	SchoolCollection  = "schools"
)

// Student is the dependent account a consent record gates. It stays inactive
// until a parent approves consent and is deactivated again on revocation.
type Student struct {
	ID          string     `json:"id" bson:"_id"`
	DisplayName string     `json:"display_name" bson:"display_name"`
	SchoolID    string     `json:"school_id" bson:"school_id"`
	Active      bool       `json:"active" bson:"active"`
	ActivatedAt *time.Time `json:"activated_at,omitempty" bson:"activated_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
}

type School struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	District  string    `json:"district,omitempty" bson:"district,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
