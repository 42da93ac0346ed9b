package model

import (
	"time"
)

// Account holds a user's identity and integer coin balance.
// Balance never drops below zero and accounts are never deleted.
// Usernames compare byte for byte, so "Alice" and "alice" are two accounts.
type Account struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(64) COLLATE utf8mb4_bin;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	Balance      int64     `gorm:"not null;default:0" json:"balance"`
	Version      int       `gorm:"not null;default:0" json:"version"` // optimistic lock version
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
