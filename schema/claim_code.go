package schema

import "time"

const (
	ClaimCodeCollection = "claimCodes"
)

// ClaimCode is a teacher-issued code that lets a student self-register into
// a school context. The student account it creates stays inactive until the
// parental consent workflow approves it.
type ClaimCode struct {
	Code      string    `json:"code" bson:"_id"`
	SchoolID  string    `json:"school_id" bson:"school_id"`
	IssuedBy  string    `json:"issued_by" bson:"issued_by"`
	MaxUses   int       `json:"max_uses" bson:"max_uses"`
	Uses      int       `json:"uses" bson:"uses"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
