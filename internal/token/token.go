// Package token はセッショントークンの発行と検証を提供する。
// トークンはHS256で署名したJWTで、サーバー側には保存しない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/taskman/internal/model"
)

// ErrInvalidToken はトークンが不正（形式不正・署名不一致・期限切れ等）な場合のエラー。
var ErrInvalidToken = errors.New("invalid token")

// Config はトークンサービスの設定を保持する。
type Config struct {
	// Secret はHMAC署名鍵。変更すると発行済みトークンはすべて無効になる。
	Secret string
	// TTL はトークンの有効期間。0の場合はexpを付与せず、期限を検証しない。
	TTL time.Duration
	// Issuer が空でない場合、issクレームとして付与し検証時に一致を確認する。
	Issuer string
}

// Claims はセッショントークンのクレーム。subにユーザーIDを格納する。
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Service はセッショントークンの発行と検証を行う。
type Service struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewService はServiceを生成する。
// 署名鍵が空の場合はエラーを返す。
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("token ttl must not be negative: %s", cfg.TTL)
	}
	return &Service{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Issue はユーザーの認証済みトークンを発行する。
func (s *Service) Issue(user *model.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("user id is required to issue a token")
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID,
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Email: user.Email,
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、認証済み主体を返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
func (s *Service) Verify(raw string) (*model.Identity, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.ttl > 0 {
		opts = append(opts, jwt.WithExpirationRequired())
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	identity := &model.Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	return identity, nil
}
