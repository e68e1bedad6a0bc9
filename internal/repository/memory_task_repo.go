package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
)

// MemoryTaskRepo はメモリ上にタスクを保持するリポジトリ。
// 所有者ごとに挿入順のIDリストを持ち、一覧は作成順で返す。
type MemoryTaskRepo struct {
	mu      sync.RWMutex
	byID    map[string]*model.Task
	byOwner map[string][]string
}

// NewMemoryTaskRepo はMemoryTaskRepoを生成する。
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{
		byID:    make(map[string]*model.Task),
		byOwner: make(map[string][]string),
	}
}

// Insert はタスクを作成する。
func (r *MemoryTaskRepo) Insert(ctx context.Context, task *model.Task) error {
	if task.OwnerID == "" {
		return fmt.Errorf("タスクの所有者が指定されていません")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if _, exists := r.byID[task.ID]; exists {
		return fmt.Errorf("task with id %s already exists", task.ID)
	}
	if task.CreatedAt.IsZero() {
		now := time.Now().UTC()
		task.CreatedAt = now
		task.UpdatedAt = now
	}

	r.byID[task.ID] = copyTask(task)
	r.byOwner[task.OwnerID] = append(r.byOwner[task.OwnerID], task.ID)
	return nil
}

// FindByOwner は所有者のタスクを作成順で返す。
func (r *MemoryTaskRepo) FindByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOwner[ownerID]
	tasks := make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, copyTask(r.byID[id]))
	}
	return tasks, nil
}

// UpdateByID はIDと所有者IDの両方が一致するタスクにパッチを適用する。
// 該当タスクがない場合はnilを返す。
func (r *MemoryTaskRepo) UpdateByID(ctx context.Context, taskID, ownerID string, patch *model.TaskPatch) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.byID[taskID]
	if !exists || stored.OwnerID != ownerID {
		return nil, nil
	}

	applied := *patch
	if applied.UpdatedAt.IsZero() {
		applied.UpdatedAt = time.Now().UTC()
	}
	applied.Apply(stored)
	return copyTask(stored), nil
}

// copyTask はポインタフィールドを含めてタスクを複製する。
func copyTask(t *model.Task) *model.Task {
	c := *t
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	return &c
}

// compile-time interface check
var _ TaskRepository = (*MemoryTaskRepo)(nil)
