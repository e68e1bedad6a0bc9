package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
)

// MemoryUserRepo はメモリ上にユーザーを保持するリポジトリ。
// ローカル実行とテストで使用する。プロセス終了時に内容は失われる。
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[string]*model.User
	byEmail map[string]string
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]string),
	}
}

// Create はユーザーを作成する。
// 存在確認と登録を同一ロック内で行うため、同時登録でも重複しない。
func (r *MemoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrDuplicateEmail
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		now := time.Now().UTC()
		user.CreatedAt = now
		user.UpdatedAt = now
	}

	stored := *user
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID
	return nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[email]
	if !exists {
		return nil, nil
	}
	user := *r.byID[id]
	return &user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, exists := r.byID[id]
	if !exists {
		return nil, nil
	}
	user := *stored
	return &user, nil
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
