package handler

import (
	"context"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

// AuthServiceAdapter は auth.Service を AuthServiceInterface に適合させるアダプタ。
type AuthServiceAdapter struct {
	svc *auth.Service
}

// NewAuthServiceAdapter はAuthServiceAdapterを生成する。
func NewAuthServiceAdapter(svc *auth.Service) *AuthServiceAdapter {
	return &AuthServiceAdapter{svc: svc}
}

// Register はユーザーを登録し、ユーザーとトークンを返す。
func (a *AuthServiceAdapter) Register(ctx context.Context, email, password string) (*model.User, string, error) {
	return unpackResult(a.svc.Register(ctx, email, password))
}

// Login は資格情報を検証し、ユーザーとトークンを返す。
func (a *AuthServiceAdapter) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	return unpackResult(a.svc.Login(ctx, email, password))
}

// WhoAmI はトークンが示すユーザーを返す。
func (a *AuthServiceAdapter) WhoAmI(ctx context.Context, rawToken string) *model.User {
	return a.svc.WhoAmI(ctx, rawToken)
}

func unpackResult(res *auth.Result, err error) (*model.User, string, error) {
	if err != nil {
		return nil, "", err
	}
	return res.User, res.Token, nil
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*AuthServiceAdapter)(nil)
var _ TaskServiceInterface = (*task.Service)(nil)
