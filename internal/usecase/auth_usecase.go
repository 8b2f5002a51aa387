package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// 平文パスワードからハッシュへ
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// 入力パスワードと保存したハッシュを比べる
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(userID int64, role model.Role, tokenVersion int, now time.Time) (token string, expiresAt time.Time, err error)
}

// UUID等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在時刻
type Clock interface {
	Now() time.Time
}

type AuthUsecase struct {
	users      repo.UserRepository
	tokens     repo.RefreshTokenRepository
	hasher     PasswordHasher
	verifier   PasswordVerifier
	issuer     AccessTokenIssuer
	idGen      IDGenerator
	clock      Clock
	refreshTTL time.Duration
}

// DI
func NewAuthUsecase(
	users repo.UserRepository,
	tokens repo.RefreshTokenRepository,
	hasher PasswordHasher,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	idGen IDGenerator,
	clock Clock,
	refreshTTL time.Duration,
) *AuthUsecase {
	return &AuthUsecase{
		users:      users,
		tokens:     tokens,
		hasher:     hasher,
		verifier:   verifier,
		issuer:     issuer,
		idGen:      idGen,
		clock:      clock,
		refreshTTL: refreshTTL,
	}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type UserOutput struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type TokenOutput struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type AuthOutput struct {
	User  UserOutput  `json:"user"`
	Token TokenOutput `json:"token"`

	// handlerがcookieに詰める。bodyには出さない
	PlainRefreshToken string `json:"-"`
}

func (u *AuthUsecase) Register(ctx context.Context, in RegisterInput) (UserOutput, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return UserOutput{}, NewHTTPError(http.StatusBadRequest, "name is required")
	}
	email := strings.TrimSpace(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return UserOutput{}, NewHTTPError(http.StatusBadRequest, "invalid email format")
	}
	if len(in.Password) < 8 {
		return UserOutput{}, NewHTTPError(http.StatusBadRequest, "password too short")
	}

	// email重複チェック
	if _, err := u.users.FindByEmail(ctx, email); err == nil {
		return UserOutput{}, NewHTTPError(http.StatusConflict, "email already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return UserOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	hash, err := u.hasher.Hash(in.Password)
	if err != nil {
		return UserOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	if err := u.users.Create(ctx, user); err != nil {
		return UserOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toUserOutput(user), nil
}

type LoginInput struct {
	Email    string
	Password string
}

func (u *AuthUsecase) Login(ctx context.Context, in LoginInput) (AuthOutput, error) {
	user, err := u.users.FindByEmail(ctx, strings.TrimSpace(in.Email))
	if errors.Is(err, repo.ErrNotFound) {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !user.IsActive {
		return AuthOutput{}, NewHTTPError(http.StatusForbidden, "user is inactive")
	}
	if !u.verifier.Verify(in.Password, user.PasswordHash) {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	now := u.clock.Now()

	out, err := u.issueTokens(ctx, user, now)
	if err != nil {
		return AuthOutput{}, err
	}

	//最終ログインを記録。失敗してもログインは通す
	last := now
	user.LastLoginAt = &last
	_ = u.users.Update(ctx, user)

	return out, nil
}

// リフレッシュトークンのローテーション。
// 使用済みトークンの再提示は漏えい扱いで、全トークン失効＋token_versionを上げる
func (u *AuthUsecase) Refresh(ctx context.Context, plainRefreshToken string) (AuthOutput, error) {
	if strings.TrimSpace(plainRefreshToken) == "" {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	t, err := u.tokens.FindByTokenHash(ctx, hashRefreshToken(plainRefreshToken))
	if errors.Is(err, repo.ErrNotFound) {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := u.clock.Now()

	if t.RevokedAt != nil || now.After(t.ExpiresAt) {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if t.UsedAt != nil {
		//再利用検知
		_ = u.tokens.DeleteAllByUserID(ctx, t.UserID)
		_ = u.users.IncrementTokenVersion(ctx, t.UserID)
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, t.UserID)
	if err != nil || !user.IsActive {
		return AuthOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if err := u.tokens.MarkUsed(ctx, t.ID, now); err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.issueTokens(ctx, user, now)
}

func (u *AuthUsecase) Logout(ctx context.Context, userID int64, plainRefreshToken string) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if strings.TrimSpace(plainRefreshToken) != "" {
		t, err := u.tokens.FindByTokenHash(ctx, hashRefreshToken(plainRefreshToken))
		if err == nil && t.UserID == userID {
			_ = u.tokens.Revoke(ctx, t.ID, u.clock.Now())
		}
	}

	return nil
}

func (u *AuthUsecase) issueTokens(ctx context.Context, user *model.User, now time.Time) (AuthOutput, error) {
	access, expiresAt, err := u.issuer.Issue(user.ID, user.Role, user.TokenVersion, now)
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	plain, err := newRefreshTokenPlain()
	if err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if err := u.tokens.Create(ctx, &model.RefreshToken{
		ID:        u.idGen.NewID(),
		UserID:    user.ID,
		TokenHash: hashRefreshToken(plain),
		ExpiresAt: now.Add(u.refreshTTL),
	}); err != nil {
		return AuthOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return AuthOutput{
		User: toUserOutput(user),
		Token: TokenOutput{
			AccessToken: access,
			ExpiresIn:   int64(expiresAt.Sub(now).Seconds()),
		},
		PlainRefreshToken: plain,
	}, nil
}

func toUserOutput(u *model.User) UserOutput {
	return UserOutput{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  string(u.Role),
	}
}

func newRefreshTokenPlain() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashRefreshToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
