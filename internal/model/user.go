// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザー（認証主体）を表す。
// 登録時に作成され、更新・削除の経路は持たない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity はセッショントークンの検証によって得られる認証済み主体を表す。
// トークンはサーバー側に保存されないため、Userを再取得せずに利用できる情報のみを持つ。
type Identity struct {
	UserID   string
	Email    string
	IssuedAt time.Time
}
