package jwt

import (
	"testing"
	"time"

	"immersion/backend/config"
)

func newTestManager() *Manager {
	return NewManager(&config.AuthConfig{
		JWTSecret:               "test-secret-key-for-unit-testing-2026",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTLDefault:  24 * time.Hour,
		RefreshTokenTTLRemember: 7 * 24 * time.Hour,
		AttendanceTokenTTL:      time.Hour,
	})
}

var testIdentity = Identity{
	UserID:          "user-1",
	Role:            "structure_manager",
	EstablishmentID: "etab-1",
}

func TestGenerateAndParseAccessToken(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAccessToken(testIdentity)
	if err != nil {
		t.Fatalf("GenerateAccessToken 失败: %v", err)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken 失败: %v", err)
	}

	if claims.UserID != "user-1" {
		t.Errorf("期望 UserID=user-1，实际=%s", claims.UserID)
	}
	if claims.Role != "structure_manager" {
		t.Errorf("期望 Role=structure_manager，实际=%s", claims.Role)
	}
	if claims.EstablishmentID != "etab-1" {
		t.Errorf("期望 EstablishmentID=etab-1，实际=%s", claims.EstablishmentID)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("期望 TokenType=access，实际=%s", claims.TokenType)
	}
	if claims.Issuer != "immersion" {
		t.Errorf("期望 Issuer=immersion，实际=%s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Error("JTI 不应为空")
	}
}

func TestGenerateRefreshToken_RememberMe(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateRefreshToken(testIdentity, true)
	if err != nil {
		t.Fatalf("GenerateRefreshToken(RememberMe) 失败: %v", err)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken 失败: %v", err)
	}
	if !claims.RememberMe || claims.TokenType != TokenTypeRefresh {
		t.Errorf("期望 refresh + RememberMe，实际=%s/%v", claims.TokenType, claims.RememberMe)
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < 6*24*time.Hour || ttl > 8*24*time.Hour {
		t.Errorf("RememberMe RefreshToken TTL 期望约7天，实际=%v", ttl)
	}
}

func TestAttendanceToken_RoundTrip(t *testing.T) {
	m := newTestManager()

	token, err := m.GenerateAttendanceToken("imm-1", "slot-1")
	if err != nil {
		t.Fatalf("GenerateAttendanceToken 失败: %v", err)
	}

	claims, err := m.ParseAttendanceToken(token)
	if err != nil {
		t.Fatalf("ParseAttendanceToken 失败: %v", err)
	}
	if claims.ImmersionID != "imm-1" || claims.SlotID != "slot-1" {
		t.Errorf("签到声明不匹配: %+v", claims)
	}
}

func TestParseAttendanceToken_RejectsAccessToken(t *testing.T) {
	m := newTestManager()

	token, _ := m.GenerateAccessToken(testIdentity)
	if _, err := m.ParseAttendanceToken(token); err != ErrTokenInvalid {
		t.Errorf("Access Token 不应被当作签到 Token，实际: %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	m1 := newTestManager()
	m2 := NewManager(&config.AuthConfig{
		JWTSecret:      "different-secret-key",
		AccessTokenTTL: 15 * time.Minute,
	})

	token, _ := m1.GenerateAccessToken(testIdentity)
	if _, err := m2.ParseToken(token); err == nil {
		t.Error("不同密钥签名的 token 不应通过验证")
	}
}

func TestParseToken_ExpiredToken(t *testing.T) {
	m := NewManager(&config.AuthConfig{
		JWTSecret:      "test-secret",
		AccessTokenTTL: 1 * time.Millisecond,
	})

	token, _ := m.GenerateAccessToken(testIdentity)
	time.Sleep(1100 * time.Millisecond)

	_, err := m.ParseToken(token)
	if err != ErrTokenExpired {
		t.Errorf("期望 ErrTokenExpired，实际: %v", err)
	}
}
