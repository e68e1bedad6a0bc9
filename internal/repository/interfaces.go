// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskman/internal/model"
)

// ErrDuplicateEmail は登録済みメールアドレスでユーザーを作成しようとした場合のエラー。
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository はユーザー（認証情報）の永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。IDが空の場合は採番する。
	// メールアドレスが登録済みの場合はErrDuplicateEmailを返す。
	// 一意性はストア側の制約で保証し、事前の存在確認には依存しない。
	Create(ctx context.Context, user *model.User) error

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// TaskRepository はタスクの永続化インターフェース。
// すべての参照・更新は所有者IDで絞り込む。
type TaskRepository interface {
	// Insert はタスクを作成する。IDが空の場合は採番する。
	// OwnerIDは呼び出し側が設定する。
	Insert(ctx context.Context, task *model.Task) error

	// FindByOwner は所有者のタスクを作成順で返す。
	FindByOwner(ctx context.Context, ownerID string) ([]*model.Task, error)

	// UpdateByID はIDと所有者IDの両方が一致するタスクにパッチを適用し、更新後のタスクを返す。
	// 該当タスクがない場合（他ユーザーのタスクを含む）はnilを返す。
	UpdateByID(ctx context.Context, taskID, ownerID string, patch *model.TaskPatch) (*model.Task, error)
}
