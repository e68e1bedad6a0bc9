// Package task は認証済みユーザーに限定したタスクの作成・一覧・更新・集計を提供する。
// すべての操作はセッショントークンを検証し、その主体を所有者としてストアにアクセスする。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/security"
)

// MaxTextLength はタスク本文の最大文字数。
const MaxTextLength = 1000

// TokenVerifier はセッショントークンの検証インターフェース。
// token.Serviceが実装する。
type TokenVerifier interface {
	Verify(raw string) (*model.Identity, error)
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Text     string
	DueDate  *time.Time
	Category string
}

// UpdateInput はタスク更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Done         *bool
	DueDate      *time.Time
	ClearDueDate bool
	Category     *string
}

// Service は所有者に限定したタスク操作を提供する。
type Service struct {
	verifier  TokenVerifier
	repo      repository.TaskRepository
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	verifier TokenVerifier,
	repo repository.TaskRepository,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		verifier:  verifier,
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   collector,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// authenticate はトークンを検証し、所有者となるユーザーIDを返す。
func (s *Service) authenticate(raw string) (string, error) {
	if raw == "" {
		return "", model.NewUnauthenticatedError()
	}
	identity, err := s.verifier.Verify(raw)
	if err != nil {
		s.metrics.RecordTokenRejected()
		return "", model.NewUnauthenticatedError()
	}
	return identity.UserID, nil
}

// Create はトークンの主体を所有者とするタスクを作成する。
// 作成時は未完了で、カテゴリ未指定の場合はWorkとなる。
func (s *Service) Create(ctx context.Context, rawToken string, in CreateInput) (*model.Task, error) {
	// 1. 認証
	ownerID, err := s.authenticate(rawToken)
	if err != nil {
		return nil, err
	}

	// 2. 入力の検証
	text := s.sanitizer.SanitizeText(in.Text)
	if text == "" {
		return nil, model.NewInvalidRequestError("タスクの内容は必須です")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("タスクの内容は%d文字以内で指定してください", MaxTextLength))
	}
	category, ok := model.ParseCategory(in.Category)
	if !ok {
		return nil, model.NewInvalidCategoryError(in.Category)
	}

	// 3. 作成
	now := s.now()
	t := &model.Task{
		OwnerID:   ownerID,
		Text:      text,
		Done:      false,
		DueDate:   utcPtr(in.DueDate),
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	s.metrics.RecordTaskCreated(string(category))
	slog.Info("task created",
		slog.String("user_id", ownerID),
		slog.String("task_id", t.ID),
	)

	return t, nil
}

// List はトークンの主体が所有するタスクを作成順で返す。
func (s *Service) List(ctx context.Context, rawToken string) ([]*model.Task, error) {
	ownerID, err := s.authenticate(rawToken)
	if err != nil {
		return nil, err
	}

	tasks, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Update はトークンの主体が所有するタスクを部分更新する。
// Done=trueで完了日時を現在時刻に設定し（再設定時も更新する）、Done=falseで完了日時を消去する。
// 他ユーザーのタスクIDは存在しないIDと同じくTASK_NOT_FOUNDとなる。
func (s *Service) Update(ctx context.Context, rawToken, taskID string, in UpdateInput) (*model.Task, error) {
	// 1. 認証
	ownerID, err := s.authenticate(rawToken)
	if err != nil {
		return nil, err
	}

	// 2. パッチの構築
	now := s.now()
	patch := &model.TaskPatch{
		Done:         in.Done,
		DueDate:      utcPtr(in.DueDate),
		ClearDueDate: in.ClearDueDate,
		UpdatedAt:    now,
	}
	if in.Done != nil && *in.Done {
		patch.CompletedAt = &now
	}
	if in.Category != nil {
		category, ok := model.ParseCategory(*in.Category)
		if !ok || *in.Category == "" {
			return nil, model.NewInvalidCategoryError(*in.Category)
		}
		patch.Category = &category
	}
	if patch.IsEmpty() {
		return nil, model.NewInvalidRequestError("更新する項目を指定してください")
	}
	if taskID == "" {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	// 3. 所有者条件付きで更新
	updated, err := s.repo.UpdateByID(ctx, taskID, ownerID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if updated == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	s.metrics.RecordTaskUpdated()
	return updated, nil
}

// Stats はトークンの主体が所有するタスクの集計を返す。
func (s *Service) Stats(ctx context.Context, rawToken string) (*model.TaskStats, error) {
	tasks, err := s.List(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	stats := model.ComputeTaskStats(tasks, s.now())
	return &stats, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
