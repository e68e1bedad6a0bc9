package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
// すべての操作はリクエストのセッショントークンを受け取り、その主体のタスクのみを扱う。
type TaskServiceInterface interface {
	List(ctx context.Context, rawToken string) ([]*model.Task, error)
	Create(ctx context.Context, rawToken string, in task.CreateInput) (*model.Task, error)
	Update(ctx context.Context, rawToken, taskID string, in task.UpdateInput) (*model.Task, error)
	Stats(ctx context.Context, rawToken string) (*model.TaskStats, error)
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// --- リクエスト型 ---

// taskRequest はタスク作成・更新リクエストのボディ。
// idが指定された場合は更新として扱う。所有者はリクエストから受け付けない。
type taskRequest struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Done     *bool        `json:"done"`
	DueDate  optionalDate `json:"due_date"`
	Category *string      `json:"category"`
}

// optionalDate は「未指定」「null（消去）」「日時」を区別するJSONフィールド。
type optionalDate struct {
	Set   bool
	Value *time.Time
}

// dateOnlyLayout は日付のみで指定された期限のレイアウト。
const dateOnlyLayout = "2006-01-02"

// UnmarshalJSON はRFC 3339形式または日付のみ（YYYY-MM-DD、UTCの0時）を受け付ける。
func (d *optionalDate) UnmarshalJSON(data []byte) error {
	d.Set = true
	if bytes.Equal(data, []byte("null")) {
		d.Value = nil
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		d.Value = nil
		return nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(dateOnlyLayout, s)
		if err != nil {
			return err
		}
	}
	d.Value = &t
	return nil
}

// --- レスポンス型 ---

// taskResponse はタスクのレスポンス。所有者IDは含めない。
type taskResponse struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Done        bool       `json:"done"`
	DueDate     *time.Time `json:"due_date"`
	CompletedAt *time.Time `json:"completed_at"`
	Category    string     `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
}

// taskStatsResponse はタスク集計のレスポンス。
type taskStatsResponse struct {
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Pending    int            `json:"pending"`
	Overdue    int            `json:"overdue"`
	ByCategory map[string]int `json:"by_category"`
}

func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Text:        t.Text,
		Done:        t.Done,
		DueDate:     t.DueDate,
		CompletedAt: t.CompletedAt,
		Category:    string(t.Category),
		CreatedAt:   t.CreatedAt,
	}
}

// ListTasks はログインユーザーのタスク一覧を作成順で返す。
// GET /api/tasks
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context(), middleware.TokenFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = toTaskResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateTask はタスクを作成する。ボディにidが含まれる場合はそのタスクを更新する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	if req.ID != "" {
		h.update(w, r, req.ID, req)
		return
	}

	in := task.CreateInput{
		Text:    req.Text,
		DueDate: req.DueDate.Value,
	}
	if req.Category != nil {
		in.Category = *req.Category
	}

	created, err := h.service.Create(r.Context(), middleware.TokenFromContext(r.Context()), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(created))
}

// UpdateTask はタスクの完了状態・期限・カテゴリを部分更新する。
// PATCH /api/tasks/{id}
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	h.update(w, r, chi.URLParam(r, "id"), req)
}

func (h *TaskHandler) update(w http.ResponseWriter, r *http.Request, taskID string, req taskRequest) {
	in := task.UpdateInput{
		Done:     req.Done,
		Category: req.Category,
	}
	if req.DueDate.Set {
		if req.DueDate.Value == nil {
			in.ClearDueDate = true
		} else {
			in.DueDate = req.DueDate.Value
		}
	}

	if _, err := h.service.Update(r.Context(), middleware.TokenFromContext(r.Context()), taskID, in); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats はログインユーザーのタスク集計を返す。
// GET /api/tasks/stats
func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), middleware.TokenFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	byCategory := make(map[string]int, len(stats.ByCategory))
	for c, n := range stats.ByCategory {
		byCategory[string(c)] = n
	}
	writeJSON(w, http.StatusOK, taskStatsResponse{
		Total:      stats.Total,
		Completed:  stats.Completed,
		Pending:    stats.Pending,
		Overdue:    stats.Overdue,
		ByCategory: byCategory,
	})
}
