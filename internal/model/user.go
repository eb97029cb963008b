// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleUser は一般読者。
	RoleUser Role = "user"
	// RolePublisher は記事を投稿できる発行者（penerbit）。
	RolePublisher Role = "penerbit"
	// RoleAdmin は監視パネルを利用できる管理者。
	RoleAdmin Role = "admin"
)

// Valid は定義済みのロールかどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RolePublisher, RoleAdmin:
		return true
	}
	return false
}

// User はアプリケーションの利用ユーザーを表す。
// 作成後はRoleとPasswordHashのみ変更される。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
