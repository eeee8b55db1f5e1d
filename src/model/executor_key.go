package model

import "time"

const (
	RoleOwner    = "owner"
	RoleExecutor = "executor"
)

// ExecutorKey is an API credential for a settlement principal. The key
// itself is never stored, only its bcrypt hash; the address is the identity
// recorded on executions.
type ExecutorKey struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Address    string `gorm:"size:128;uniqueIndex;not null" json:"address"`
	Role       string `gorm:"size:20;not null;default:executor" json:"role"`
	APIKeyHash string `gorm:"size:128;not null" json:"-"`
	Active     bool   `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for executor keys.
func (ExecutorKey) TableName() string {
	return "executor_keys"
}
