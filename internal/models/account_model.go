package models

import (
	"time"
)

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
	AccountStatusBlocked  AccountStatus = "blocked"
	AccountStatusLimited  AccountStatus = "limited"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusBlocked, AccountStatusLimited:
		return true
	}
	return false
}

// Account is a publishing account. EncryptedSecret holds the AES-GCM sealed
// credential and is never serialized.
type Account struct {
	ID              int64         `db:"id" json:"id"`
	Username        string        `db:"username" json:"username"`
	EncryptedSecret string        `db:"encrypted_secret" json:"-"`
	Status          AccountStatus `db:"status" json:"status"`
	TotalPosts      int64         `db:"total_posts" json:"total_posts"`
	LastPostTime    *time.Time    `db:"last_post_time" json:"last_post_time"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether the account may receive new dispatch attempts.
func (a *Account) Eligible() bool {
	return a != nil && a.Status == AccountStatusActive
}

// Credentials is the decrypted secret handed to the publisher. It must not
// leave the process.
type Credentials struct {
	AccountID int64
	Username  string
	Secret    string
}
