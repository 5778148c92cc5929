package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leafflow/chat-service/internal/chat"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestVerify(t *testing.T) {
	v := NewHS256Verifier(testSecret)

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   chat.Principal
	}{
		{
			name:   "numeric sub, default kind",
			claims: jwt.MapClaims{"sub": 42},
			want:   chat.Principal{Kind: chat.KindUser, SubjectID: 42},
		},
		{
			name:   "string sub",
			claims: jwt.MapClaims{"sub": "42"},
			want:   chat.Principal{Kind: chat.KindUser, SubjectID: 42},
		},
		{
			name:   "explicit admin kind",
			claims: jwt.MapClaims{"sub": 1, "kind": "admin"},
			want:   chat.Principal{Kind: chat.KindAdmin, SubjectID: 1},
		},
		{
			name:   "role fallback",
			claims: jwt.MapClaims{"sub": 1, "role": "admin"},
			want:   chat.Principal{Kind: chat.KindAdmin, SubjectID: 1},
		},
		{
			name:   "roles list",
			claims: jwt.MapClaims{"sub": 7, "roles": []string{"admin", "support"}},
			want:   chat.Principal{Kind: chat.KindUser, SubjectID: 7, Roles: []string{"admin", "support"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(signToken(t, tt.claims, testSecret))
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got.Kind != tt.want.Kind || got.SubjectID != tt.want.SubjectID {
				t.Errorf("principal = %+v, want %+v", got, tt.want)
			}
			if len(got.Roles) != len(tt.want.Roles) {
				t.Errorf("roles = %v, want %v", got.Roles, tt.want.Roles)
			}
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewHS256Verifier(testSecret)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"wrong secret", signToken(t, jwt.MapClaims{"sub": 1}, "other-secret")},
		{"missing sub", signToken(t, jwt.MapClaims{"kind": "user"}, testSecret)},
		{"non-numeric sub", signToken(t, jwt.MapClaims{"sub": "alice"}, testSecret)},
		{"expired", signToken(t, jwt.MapClaims{"sub": 1, "exp": time.Now().Add(-time.Hour).Unix()}, testSecret)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}
