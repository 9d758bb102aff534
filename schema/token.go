package schema

import "time"

const (
	TokenAccountCollection     = "tokenAccounts"
	TokenTransactionCollection = "tokenTransactions"
)

type TokenTransactionType string

const (
	TokenAwarded  TokenTransactionType = "awarded"
	TokenRedeemed TokenTransactionType = "redeemed"
)

// TokenAccount tracks a member's kindness token balance. Balance never goes
// negative: redemption is a conditional decrement on balance >= amount.
type TokenAccount struct {
	Owner     string    `json:"owner" bson:"_id"`
	SchoolID  string    `json:"school_id" bson:"school_id"`
	Balance   int64     `json:"balance" bson:"balance"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type TokenTransaction struct {
	ID        string               `json:"id" bson:"_id"`
	Owner     string               `json:"owner" bson:"owner"`
	Type      TokenTransactionType `json:"type" bson:"type"`
	Amount    int64                `json:"amount" bson:"amount"`
	Reason    string               `json:"reason,omitempty" bson:"reason,omitempty"`
	RewardID  string               `json:"reward_id,omitempty" bson:"reward_id,omitempty"`
	CreatedAt time.Time            `json:"ts" bson:"ts"`
}
