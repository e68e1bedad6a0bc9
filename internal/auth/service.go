// Package auth はメールアドレスとパスワードによる登録・ログインと、
// セッショントークンからの認証主体の解決を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// maxEmailLength はメールアドレスの最大長（RFC 5321）。
const maxEmailLength = 320

// TokenService はセッショントークンの発行と検証のインターフェース。
// token.Serviceが実装する。
type TokenService interface {
	Issue(user *model.User) (string, error)
	Verify(raw string) (*model.Identity, error)
}

// Result は登録・ログイン成功時の結果を表す。
type Result struct {
	User  *model.User
	Token string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	tokens   TokenService
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	tokens TokenService,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		metrics:  collector,
	}
}

// NormalizeEmail はメールアドレスの前後の空白を除去し小文字に揃える。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はユーザーを登録し、セッショントークンを発行する。
// メールアドレスが登録済みの場合はDUPLICATE_IDENTITYエラーを返す。
func (s *Service) Register(ctx context.Context, email, password string) (*Result, error) {
	// 1. 入力の正規化と検証
	email = NormalizeEmail(email)
	if apiErr := validateCredentials(email, password); apiErr != nil {
		return nil, apiErr
	}

	// 2. パスワードをハッシュ化
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, err
	}

	// 3. ユーザーを作成（一意性はストアが保証する）
	user := &model.User{Email: email, PasswordHash: hash}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.metrics.RecordRegistration(metrics.ResultDuplicate)
			return nil, model.NewDuplicateIdentityError()
		}
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 4. トークンを発行
	raw, err := s.tokens.Issue(user)
	if err != nil {
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordRegistration(metrics.ResultSuccess)
	slog.Info("user registered", slog.String("user_id", user.ID))

	return &Result{User: user, Token: raw}, nil
}

// VerifyCredentials はメールアドレスとパスワードを照合する。
// 未登録のメールアドレスまたはパスワード不一致の場合はnilを返す。
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, nil
		}
		return nil, err
	}

	return user, nil
}

// Login は認証情報を照合し、セッショントークンを発行する。
// 未登録・パスワード不一致のいずれもUNAUTHENTICATEDエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	user, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		s.metrics.RecordLogin(metrics.ResultError)
		return nil, err
	}
	if user == nil {
		s.metrics.RecordLogin(metrics.ResultRejected)
		return nil, model.NewUnauthenticatedError()
	}

	raw, err := s.tokens.Issue(user)
	if err != nil {
		s.metrics.RecordLogin(metrics.ResultError)
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordLogin(metrics.ResultSuccess)
	slog.Info("user logged in", slog.String("user_id", user.ID))

	return &Result{User: user, Token: raw}, nil
}

// WhoAmI はトークンが示すユーザーを返す。
// トークンが無い・不正・ユーザーが存在しない場合は匿名としてnilを返す。
// ストアの障害も匿名扱いとし、エラーはログに記録する。
func (s *Service) WhoAmI(ctx context.Context, raw string) *model.User {
	if raw == "" {
		return nil
	}

	identity, err := s.tokens.Verify(raw)
	if err != nil {
		s.metrics.RecordTokenRejected()
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if err != nil {
		slog.Warn("failed to resolve user for token",
			slog.String("user_id", identity.UserID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if user == nil {
		slog.Debug("token subject no longer resolves",
			slog.String("user_id", identity.UserID),
			slog.Time("issued_at", identity.IssuedAt),
		)
		return nil
	}

	slog.Debug("session resolved",
		slog.String("user_id", user.ID),
		slog.Time("issued_at", identity.IssuedAt),
	)
	return user
}

// validateCredentials は登録時のメールアドレスとパスワードを検証する。
func validateCredentials(email, password string) *model.APIError {
	if email == "" {
		return model.NewInvalidRequestError("メールアドレスは必須です")
	}
	if len(email) > maxEmailLength || !strings.Contains(email, "@") {
		return model.NewInvalidRequestError("メールアドレスの形式が正しくありません")
	}
	if password == "" {
		return model.NewInvalidRequestError("パスワードは必須です")
	}
	if len(password) > MaxPasswordBytes {
		return model.NewInvalidRequestError(fmt.Sprintf("パスワードは%dバイト以内で指定してください", MaxPasswordBytes))
	}
	return nil
}
