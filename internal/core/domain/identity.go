package domain

import (
	"strings"
	"time"
)

// Role is the privilege level of an identity.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Status is the lifecycle state of an identity.
//
//	INVITED → ACTIVE
//
// ACTIVE is reached only through a successful invite consumption or an
// administrator password set; there is no transition back.
type Status string

const (
	StatusInvited Status = "INVITED"
	StatusActive  Status = "ACTIVE"
)

// SubscriptionStatus is the commercial standing reported by the storefront.
// The empty value means "never set".
type SubscriptionStatus string

const (
	SubscriptionActive       SubscriptionStatus = "ACTIVE"
	SubscriptionUnsubscribed SubscriptionStatus = "UNSUBSCRIBED"
)

func (s SubscriptionStatus) IsValid() bool {
	return s == "" || s == SubscriptionActive || s == SubscriptionUnsubscribed
}

// Identity is a person who may sign in.
//
// Invariants kept by every Credential Store driver:
//   - Status == ACTIVE implies PasswordHash != nil.
//   - Status != ACTIVE implies Active == false.
//   - InviteToken and InviteExpiresAt are set or cleared together (same for reset).
type Identity struct {
	ID                 string             `json:"id"`
	Email              string             `json:"email"`
	Name               string             `json:"name"`
	Username           *string            `json:"username,omitempty"`
	PasswordHash       *string            `json:"-"`
	Role               Role               `json:"role"`
	Status             Status             `json:"status"`
	Active             bool               `json:"active"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status,omitempty"`

	InviteToken     *string    `json:"-"`
	InviteExpiresAt *time.Time `json:"-"`
	ResetToken      *string    `json:"-"`
	ResetExpiresAt  *time.Time `json:"-"`

	ProductName string `json:"product_name,omitempty"`
	ProductID   string `json:"product_id,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}

// HasPassword reports whether a password hash has been stored.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}

// Lapsed reports whether a non-admin identity has an ended subscription.
func (i *Identity) Lapsed() bool {
	return i.Role != RoleAdmin && i.SubscriptionStatus == SubscriptionUnsubscribed
}

// LiveInvite returns the stored invite token when it has not expired at now.
func (i *Identity) LiveInvite(now time.Time) (TokenGrant, bool) {
	if i.InviteToken == nil || i.InviteExpiresAt == nil || !now.Before(*i.InviteExpiresAt) {
		return TokenGrant{}, false
	}
	return TokenGrant{Token: *i.InviteToken, ExpiresAt: *i.InviteExpiresAt}, true
}

// Clone returns a deep copy so stores never share pointers with callers.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Username = cloneString(i.Username)
	c.PasswordHash = cloneString(i.PasswordHash)
	c.InviteToken = cloneString(i.InviteToken)
	c.ResetToken = cloneString(i.ResetToken)
	c.InviteExpiresAt = cloneTime(i.InviteExpiresAt)
	c.ResetExpiresAt = cloneTime(i.ResetExpiresAt)
	c.LastLoginAt = cloneTime(i.LastLoginAt)
	c.UnsubscribedAt = cloneTime(i.UnsubscribedAt)
	return &c
}

// IdentityPatch is a partial update. Nil fields are left untouched.
type IdentityPatch struct {
	Name               *string
	Username           *string
	Role               *Role
	Active             *bool
	SubscriptionStatus *SubscriptionStatus
	UnsubscribedAt     *time.Time
	ProductName        *string
	ProductID          *string

	// PasswordHash, when set, also activates the identity and clears any
	// pending invite token in the same write.
	PasswordHash *string
}

// TokenGrant is a freshly issued single-use token and its expiry.
type TokenGrant struct {
	Token     string
	ExpiresAt time.Time
}

// NormalizeEmail trims surrounding whitespace. Comparison stays case-sensitive.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

// ValidEmail is a structural check: one '@' with non-empty local and domain parts.
func ValidEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n")
}

// ValidUsername rejects '@' so usernames can never collide with emails.
func ValidUsername(username string) bool {
	return username != "" && !strings.ContainsAny(username, "@ \t\r\n")
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CheckInvariants reports the first lifecycle invariant i violates.
func (i *Identity) CheckInvariants() error {
	if i.Status == StatusActive && !i.HasPassword() {
		return NewValidationError("active identity requires a password", "password")
	}
	if i.Status != StatusActive && i.Active {
		return NewValidationError("identity has not accepted its invite", "active")
	}
	if i.Username != nil && !ValidUsername(*i.Username) {
		return NewValidationError("invalid username", "username")
	}
	if (i.InviteToken == nil) != (i.InviteExpiresAt == nil) || (i.ResetToken == nil) != (i.ResetExpiresAt == nil) {
		return NewValidationError("token and expiry must be set together", "token")
	}
	return nil
}

// Apply writes the non-nil fields of p onto i. An empty Username clears it.
func (i *Identity) Apply(p IdentityPatch) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.Username != nil {
		if *p.Username == "" {
			i.Username = nil
		} else {
			i.Username = cloneString(p.Username)
		}
	}
	if p.Role != nil {
		i.Role = *p.Role
	}
	if p.Active != nil {
		i.Active = *p.Active
	}
	if p.SubscriptionStatus != nil {
		i.SubscriptionStatus = *p.SubscriptionStatus
	}
	if p.UnsubscribedAt != nil {
		i.UnsubscribedAt = cloneTime(p.UnsubscribedAt)
	}
	if p.ProductName != nil {
		i.ProductName = *p.ProductName
	}
	if p.ProductID != nil {
		i.ProductID = *p.ProductID
	}
	if p.PasswordHash != nil {
		i.PasswordHash = cloneString(p.PasswordHash)
		i.Status = StatusActive
		i.Active = true
		i.InviteToken, i.InviteExpiresAt = nil, nil
	}
}
