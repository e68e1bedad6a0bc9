package model

import (
	"strings"
	"time"
)

// Category はタスクの分類を表す。
type Category string

// Category の定数定義
const (
	CategoryWork    Category = "Work"
	CategoryLeisure Category = "Leisure"
	CategoryStudy   Category = "Study"
)

// DefaultCategory はカテゴリ未指定時に適用される分類。
const DefaultCategory = CategoryWork

// Categories は有効なカテゴリを表示順で返す。
func Categories() []Category {
	return []Category{CategoryWork, CategoryLeisure, CategoryStudy}
}

// ParseCategory は文字列をCategoryに変換する。
// 空文字の場合はDefaultCategoryを返す。大文字小文字は区別しない。
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCategory, true
	}
	for _, c := range Categories() {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// Task はユーザーが所有する1件のタスクを表す。
// OwnerIDは作成時に設定され、以後変更されない。
// CompletedAtはDoneがtrueの間のみ非nilとなる。
type Task struct {
	ID          string
	OwnerID     string
	Text        string
	Done        bool
	DueDate     *time.Time
	CompletedAt *time.Time
	Category    Category
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOverdue は期限を過ぎた未完了タスクかどうかを返す。
func (t *Task) IsOverdue(now time.Time) bool {
	return !t.Done && t.DueDate != nil && t.DueDate.Before(now)
}

// TaskPatch はタスクの部分更新内容を表す。
// nilフィールドは変更しない。
type TaskPatch struct {
	Done *bool
	// CompletedAt はDoneと組で適用される。Done=trueのとき完了日時、Done=falseのときnil。
	CompletedAt  *time.Time
	DueDate      *time.Time
	ClearDueDate bool
	Category     *Category
	UpdatedAt    time.Time
}

// IsEmpty は更新対象のフィールドが1つも指定されていないかを返す。
func (p *TaskPatch) IsEmpty() bool {
	return p.Done == nil && p.DueDate == nil && !p.ClearDueDate && p.Category == nil
}

// Apply はパッチをタスクに適用する。インメモリストアで使用する。
func (p *TaskPatch) Apply(t *Task) {
	if p.Done != nil {
		t.Done = *p.Done
		if *p.Done {
			completedAt := p.CompletedAt
			if completedAt == nil {
				now := p.UpdatedAt
				completedAt = &now
			}
			c := *completedAt
			t.CompletedAt = &c
		} else {
			t.CompletedAt = nil
		}
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if !p.UpdatedAt.IsZero() {
		t.UpdatedAt = p.UpdatedAt
	}
}

// TaskStats はユーザーのタスク集計結果を表す。
type TaskStats struct {
	Total      int
	Completed  int
	Pending    int
	Overdue    int
	ByCategory map[Category]int
}

// ComputeTaskStats はタスク一覧から集計結果を算出する。
// ByCategoryには全カテゴリが0件でも含まれる。
func ComputeTaskStats(tasks []*Task, now time.Time) TaskStats {
	stats := TaskStats{ByCategory: make(map[Category]int, len(Categories()))}
	for _, c := range Categories() {
		stats.ByCategory[c] = 0
	}
	for _, t := range tasks {
		stats.Total++
		if t.Done {
			stats.Completed++
		} else {
			stats.Pending++
		}
		if t.IsOverdue(now) {
			stats.Overdue++
		}
		stats.ByCategory[t.Category]++
	}
	return stats
}
