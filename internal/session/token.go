package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperr "orderboard/internal/xpkg/errors"
)

type claims struct {
	Tenant     string `json:"tenant"`
	Role       string `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
	Tables     []int  `json:"tables,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs sess as an HS256 token valid for ttl.
func IssueToken(secret string, sess Session, ttl time.Duration) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret: %w", apperr.ErrFieldIsEmpty)
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)

	c := claims{
		Tenant:     sess.tenantID,
		Role:       string(sess.role),
		CustomerID: sess.customerID,
		Tables:     sess.Tables(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken verifies raw and rebuilds the Session it carries. Every failure
// is an *AuthError matching ErrUnauthorized.
func ParseToken(secret, raw string, now time.Time) (Session, error) {
	if raw == "" {
		return Session{}, &AuthError{Reason: "missing token", Err: apperr.ErrUnauthorized}
	}

	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		reason := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			reason = "token expired"
		}
		return Session{}, &AuthError{Reason: reason, Err: apperr.ErrUnauthorized}
	}

	return fromClaims(c)
}

// ReadToken rebuilds the Session in raw without checking the signature.
// Clients without the signing secret use it to scope their own screens; the
// store still verifies every request. Expired tokens are rejected.
func ReadToken(raw string, now time.Time) (Session, error) {
	if raw == "" {
		return Session{}, &AuthError{Reason: "missing token", Err: apperr.ErrUnauthorized}
	}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &c); err != nil {
		return Session{}, &AuthError{Reason: "malformed token", Err: apperr.ErrUnauthorized}
	}
	if c.ExpiresAt == nil || !now.Before(c.ExpiresAt.Time) {
		return Session{}, &AuthError{Reason: "token expired", Err: apperr.ErrUnauthorized}
	}
	return fromClaims(c)
}

func fromClaims(c claims) (Session, error) {
	role, err := ParseRole(c.Role)
	if err != nil {
		return Session{}, &AuthError{Reason: err.Error(), Err: apperr.ErrUnauthorized}
	}

	opts := []Option{
		WithSubject(c.Subject),
		WithCustomer(c.CustomerID),
		WithTables(c.Tables...),
	}
	if c.ExpiresAt != nil {
		opts = append(opts, WithExpiry(c.ExpiresAt.Time))
	}
	sess, err := New(c.Tenant, role, opts...)
	if err != nil {
		return Session{}, &AuthError{Reason: err.Error(), Err: apperr.ErrUnauthorized}
	}
	return sess, nil
}
