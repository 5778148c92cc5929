// Package auth resolves bearer tokens to principals.
package auth

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/leafflow/chat-service/internal/chat"
)

// Verifier resolves a bearer token to the caller's principal.
type Verifier interface {
	Verify(token string) (chat.Principal, error)
}

// HS256Verifier validates JWTs signed with a shared HMAC secret.
//
// Claims: sub (subject id, string or number), kind ("user"/"admin",
// falling back to role, defaulting to user), roles (string list).
type HS256Verifier struct {
	secret []byte
}

func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

func (v *HS256Verifier) Verify(token string) (chat.Principal, error) {
	claims := jwt.MapClaims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !t.Valid {
		return chat.Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	sub, err := subjectID(claims)
	if err != nil {
		return chat.Principal{}, err
	}

	kindRaw, _ := claims["kind"].(string)
	if kindRaw == "" {
		kindRaw, _ = claims["role"].(string)
	}
	kind := chat.KindUser
	if chat.ParticipantKind(kindRaw) == chat.KindAdmin {
		kind = chat.KindAdmin
	}

	var roles []string
	if rs, ok := claims["roles"].([]any); ok {
		for _, r := range rs {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
	}

	return chat.Principal{Kind: kind, SubjectID: sub, Roles: roles}, nil
}

func subjectID(claims jwt.MapClaims) (int64, error) {
	switch v := claims["sub"].(type) {
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("non-numeric sub claim %q", v)
		}
		return n, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("missing sub claim")
}
