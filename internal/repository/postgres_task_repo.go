package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
)

const taskColumns = `id, owner_id, text, done, due_date, completed_at, category, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var dueDate, completedAt sql.NullTime
	var category string

	if err := s.Scan(
		&task.ID, &task.OwnerID, &task.Text, &task.Done,
		&dueDate, &completedAt, &category,
		&task.CreatedAt, &task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.Category = model.Category(category)
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return task, nil
}

// Insert はタスクを作成する。
func (r *PostgresTaskRepo) Insert(ctx context.Context, task *model.Task) error {
	if task.OwnerID == "" {
		return fmt.Errorf("タスクの所有者が指定されていません")
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		now := time.Now().UTC()
		task.CreatedAt = now
		task.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.OwnerID, task.Text, task.Done,
		task.DueDate, task.CompletedAt, string(task.Category),
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByOwner は所有者のタスクを作成順で返す。
func (r *PostgresTaskRepo) FindByOwner(ctx context.Context, ownerID string) ([]*model.Task, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []*model.Task{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE owner_id = $1
		 ORDER BY created_at ASC, seq ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("タスクの読み取りに失敗しました: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の走査に失敗しました: %w", err)
	}

	return tasks, nil
}

// UpdateByID はIDと所有者IDの両方が一致するタスクを1文のUPDATEで部分更新する。
// 該当タスクがない場合はnilを返す。
func (r *PostgresTaskRepo) UpdateByID(ctx context.Context, taskID, ownerID string, patch *model.TaskPatch) (*model.Task, error) {
	// UUID形式でないIDは該当なしとして扱う
	if _, err := uuid.Parse(taskID); err != nil {
		return nil, nil
	}
	if _, err := uuid.Parse(ownerID); err != nil {
		return nil, nil
	}

	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	// 1. SET句を組み立てる（$1=id, $2=owner_id）
	args := []any{taskID, ownerID, updatedAt}
	sets := []string{"updated_at = $3"}
	addSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Done != nil {
		addSet("done", *patch.Done)
		if *patch.Done {
			completedAt := updatedAt
			if patch.CompletedAt != nil {
				completedAt = *patch.CompletedAt
			}
			addSet("completed_at", completedAt)
		} else {
			sets = append(sets, "completed_at = NULL")
		}
	}
	if patch.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if patch.DueDate != nil {
		addSet("due_date", *patch.DueDate)
	}
	if patch.Category != nil {
		addSet("category", string(*patch.Category))
	}

	// 2. 所有者条件付きで更新し、更新後の行を返す
	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND owner_id = $2 RETURNING ` + taskColumns

	task, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}

	return task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
