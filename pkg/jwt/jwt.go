package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"immersion/backend/config"
)

var (
	ErrTokenExpired = errors.New("token 已过期")
	ErrTokenInvalid = errors.New("token 无效")
)

const issuer = "immersion"

// Token 类型
const (
	TokenTypeAccess     = "access"
	TokenTypeRefresh    = "refresh"
	TokenTypeAttendance = "attendance"
)

// Claims 自定义 JWT 声明
type Claims struct {
	UserID          string `json:"user_id"`
	Role            string `json:"role"`
	EstablishmentID string `json:"establishment_id,omitempty"`
	HighSchoolID    string `json:"highschool_id,omitempty"`
	TokenType       string `json:"token_type"`
	RememberMe      bool   `json:"remember_me,omitempty"`
	jwtv5.RegisteredClaims
}

// AttendanceClaims 签到二维码中携带的声明
type AttendanceClaims struct {
	ImmersionID string `json:"immersion_id"`
	SlotID      string `json:"slot_id"`
	TokenType   string `json:"token_type"`
	jwtv5.RegisteredClaims
}

// Identity 生成 Token 所需的用户身份
type Identity struct {
	UserID          string
	Role            string
	EstablishmentID string
	HighSchoolID    string
}

// Manager JWT 管理器
type Manager struct {
	secret                  []byte
	accessTokenTTL          time.Duration
	refreshTokenTTLDefault  time.Duration
	refreshTokenTTLRemember time.Duration
	attendanceTokenTTL      time.Duration
}

// NewManager 创建 JWT 管理器
func NewManager(cfg *config.AuthConfig) *Manager {
	return &Manager{
		secret:                  []byte(cfg.JWTSecret),
		accessTokenTTL:          cfg.AccessTokenTTL,
		refreshTokenTTLDefault:  cfg.RefreshTokenTTLDefault,
		refreshTokenTTLRemember: cfg.RefreshTokenTTLRemember,
		attendanceTokenTTL:      cfg.AttendanceTokenTTL,
	}
}

// AccessTokenTTL Access Token 有效期
func (m *Manager) AccessTokenTTL() time.Duration { return m.accessTokenTTL }

// GenerateAccessToken 生成 Access Token
func (m *Manager) GenerateAccessToken(id Identity) (string, error) {
	return m.sign(id, TokenTypeAccess, false, m.accessTokenTTL)
}

// GenerateRefreshToken 生成 Refresh Token
// rememberMe 为 true 时使用更长的有效期
func (m *Manager) GenerateRefreshToken(id Identity, rememberMe bool) (string, error) {
	ttl := m.refreshTokenTTLDefault
	if rememberMe {
		ttl = m.refreshTokenTTLRemember
	}
	return m.sign(id, TokenTypeRefresh, rememberMe, ttl)
}

func (m *Manager) sign(id Identity, tokenType string, rememberMe bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:          id.UserID,
		Role:            id.Role,
		EstablishmentID: id.EstablishmentID,
		HighSchoolID:    id.HighSchoolID,
		TokenType:       tokenType,
		RememberMe:      rememberMe,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析并验证 Token
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// GenerateAttendanceToken 为某次报名生成短期签到 Token
func (m *Manager) GenerateAttendanceToken(immersionID, slotID string) (string, error) {
	now := time.Now()
	claims := AttendanceClaims{
		ImmersionID: immersionID,
		SlotID:      slotID,
		TokenType:   TokenTypeAttendance,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(m.attendanceTokenTTL)),
			Issuer:    issuer,
			Subject:   immersionID,
		},
	}
	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseAttendanceToken 解析签到 Token
func (m *Manager) ParseAttendanceToken(tokenString string) (*AttendanceClaims, error) {
	claims := &AttendanceClaims{}
	if err := m.parse(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAttendance {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) parse(tokenString string, claims jwtv5.Claims) error {
	token, err := jwtv5.ParseWithClaims(tokenString, claims, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwtv5.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
