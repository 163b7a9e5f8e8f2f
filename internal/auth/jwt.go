package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"snapkit/internal/entity"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "snapkit"
	defaultLifetime = 24 * time.Hour
	clockSkew       = 30 * time.Second
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims 是会话令牌的载荷。角色只用于展示，权限以数据库中的用户为准。
type Claims struct {
	UserID uint   `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Manager 签发并校验 HS256 会话令牌
type Manager struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	parser   *jwt.Parser
	now      func() time.Time
}

func NewManager(secret, issuer string, lifetime time.Duration) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if issuer = strings.TrimSpace(issuer); issuer == "" {
		issuer = defaultIssuer
	}
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}
	return &Manager{
		secret:   []byte(secret),
		issuer:   issuer,
		lifetime: lifetime,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(clockSkew),
		),
		now: time.Now,
	}, nil
}

// GenerateToken 为启用状态的用户签发令牌，返回令牌与过期时间
func (m *Manager) GenerateToken(user *entity.DbUser) (string, time.Time, error) {
	switch {
	case user == nil || user.ID == 0:
		return "", time.Time{}, errors.New("token subject must be a persisted user")
	case !user.IsActive:
		return "", time.Time{}, fmt.Errorf("user %d is disabled", user.ID)
	}

	issuedAt := m.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(m.lifetime)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken 校验签名、签发方与有效期。失败时返回包装了 ErrInvalidToken 的错误。
func (m *Manager) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := m.parser.ParseWithClaims(raw, claims, m.key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return claims, nil
}

func (m *Manager) key(*jwt.Token) (any, error) {
	return m.secret, nil
}
