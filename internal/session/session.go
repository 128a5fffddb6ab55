// Package session holds the caller identity a view is mounted with.
//
// A Session is an immutable value: it is built once at mount time, either
// from a signed token or directly in tests, and handed to every component
// that needs the tenant, role or customer scope.
package session

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	apperr "orderboard/internal/xpkg/errors"
)

type Role string

const (
	RoleKitchen  Role = "kitchen"
	RoleServer   Role = "server"
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

var ErrInvalidRole = errors.New("invalid role")

func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleKitchen, RoleServer, RoleAdmin, RoleCustomer:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// View names a role-scoped screen.
type View string

const (
	ViewKitchen   View = "kitchen"
	ViewServer    View = "server"
	ViewAdmin     View = "admin"
	ViewCustomer  View = "customer"
	ViewCancelled View = "cancelled"
)

func Views() []View {
	return []View{ViewKitchen, ViewServer, ViewAdmin, ViewCustomer, ViewCancelled}
}

func ParseView(raw string) (View, error) {
	v := View(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Views() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown view %q", raw)
}

// allowedViews is the role/view matrix. Customer screens are not listed for
// admin: they are scoped by customer identity, which an admin session lacks.
var allowedViews = map[Role][]View{
	RoleKitchen:  {ViewKitchen, ViewCancelled},
	RoleServer:   {ViewServer, ViewCancelled},
	RoleAdmin:    {ViewKitchen, ViewServer, ViewAdmin, ViewCancelled},
	RoleCustomer: {ViewCustomer},
}

type Session struct {
	tenantID   string
	role       Role
	subject    string
	customerID string
	tables     []int
	expiresAt  time.Time
}

type Option func(*Session)

func WithSubject(sub string) Option {
	return func(s *Session) { s.subject = sub }
}

func WithCustomer(id string) Option {
	return func(s *Session) { s.customerID = strings.TrimSpace(id) }
}

// WithTables scopes a server session to its assigned tables.
func WithTables(tables ...int) Option {
	return func(s *Session) {
		s.tables = append([]int(nil), tables...)
		sort.Ints(s.tables)
	}
}

func WithExpiry(at time.Time) Option {
	return func(s *Session) { s.expiresAt = at }
}

func New(tenantID string, role Role, opts ...Option) (Session, error) {
	s := Session{tenantID: strings.TrimSpace(tenantID), role: role}
	for _, opt := range opts {
		opt(&s)
	}

	if s.tenantID == "" {
		return Session{}, fmt.Errorf("tenant: %w", apperr.ErrFieldIsEmpty)
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Session{}, err
	}
	for _, t := range s.tables {
		if t <= 0 {
			return Session{}, fmt.Errorf("table number must be positive: %d", t)
		}
	}
	return s, nil
}

func (s Session) TenantID() string     { return s.tenantID }
func (s Session) Role() Role           { return s.role }
func (s Session) Subject() string      { return s.subject }
func (s Session) CustomerID() string   { return s.customerID }
func (s Session) ExpiresAt() time.Time { return s.expiresAt }

// Tables returns a copy of the assigned tables.
func (s Session) Tables() []int {
	if len(s.tables) == 0 {
		return nil
	}
	return append([]int(nil), s.tables...)
}

func (s Session) IsZero() bool {
	return s.tenantID == "" && s.role == ""
}

func (s Session) Expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

// ChangedBy is the actor name recorded in the status log.
func (s Session) ChangedBy() string {
	if s.subject != "" {
		return s.subject
	}
	return string(s.role)
}

// AuthError is returned when a session may not mount a view. It matches
// ErrUnauthorized or ErrForbidden with errors.Is.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Authorize decides whether sess may mount view. It runs before any polling starts.
func Authorize(sess Session, view View) error {
	return AuthorizeAt(sess, view, time.Now())
}

func AuthorizeAt(sess Session, view View, now time.Time) error {
	switch {
	case sess.IsZero() || sess.tenantID == "":
		return &AuthError{Reason: "no session", Err: apperr.ErrUnauthorized}
	case sess.Expired(now):
		return &AuthError{Reason: "session expired", Err: apperr.ErrUnauthorized}
	}

	allowed := false
	for _, v := range allowedViews[sess.role] {
		if v == view {
			allowed = true
			break
		}
	}
	if !allowed {
		return &AuthError{
			Reason: fmt.Sprintf("role %s cannot open the %s view", sess.role, view),
			Err:    apperr.ErrForbidden,
		}
	}

	if view == ViewCustomer && sess.customerID == "" {
		return &AuthError{Reason: "customer identity unresolved", Err: apperr.ErrUnauthorized}
	}
	return nil
}
