package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB handles PostgreSQL jsonb columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Account is a tenant workspace. Rows loaded through GORM pass through
// AfterFind, which is the only place raw statuses get normalized.
type Account struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	Slug        string    `gorm:"uniqueIndex;not null;size:50" json:"slug"`
	Subdomain   string    `gorm:"uniqueIndex;not null;size:63" json:"subdomain"`
	Status      string    `gorm:"not null;default:'pending_setup'" json:"status"`
	Plan        string    `gorm:"not null;default:'free'" json:"plan"`
	OwnerUserID uuid.UUID `gorm:"type:uuid" json:"owner_user_id"`
	// SetupCompletedAt is set exactly once, by the pending_setup -> active
	// transition, and never overwritten afterwards.
	SetupCompletedAt *time.Time `json:"setup_completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AccountStatusPendingSetup
	}
	if a.Plan == "" {
		a.Plan = PlanFree
	}
	return nil
}

func (a *Account) AfterFind(tx *gorm.DB) error {
	a.Status = NormalizeAccountStatus(a.Status)
	return nil
}

// Limits projects the account's plan onto its effective quota set.
func (a *Account) Limits() EffectiveLimits {
	return LimitsForPlan(a.Plan)
}

// AccountProfile holds the setup-completion fields, separate from the
// account row so setup writes never race status transitions.
type AccountProfile struct {
	AccountID        uuid.UUID `gorm:"type:uuid;primary_key" json:"account_id"`
	PreferredChannel string    `gorm:"not null;default:'email'" json:"preferred_channel"`
	WhatsappNumber   string    `gorm:"size:20" json:"whatsapp_number,omitempty"`
	SiteURL          string    `gorm:"size:255" json:"site_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (AccountProfile) TableName() string {
	return "account_profiles"
}

// Membership links a user to an account with a role.
type Membership struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	AccountID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_account_user" json:"account_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_account_user" json:"user_id"`
	Role      string    `gorm:"not null;default:'viewer'" json:"role"`
	Status    string    `gorm:"not null;default:'active'" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Membership) TableName() string {
	return "account_memberships"
}

func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (m *Membership) AfterFind(tx *gorm.DB) error {
	m.Role = NormalizeRole(m.Role)
	m.Status = NormalizeMemberStatus(m.Status)
	return nil
}

// PostSaleToken is a single-use onboarding grant issued after a sale.
// The plaintext secret is never stored; SecretHash is its SHA-256 digest.
// Revocation sets ExpiresAt to the revocation instant.
type PostSaleToken struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	SecretHash  string     `gorm:"not null;size:64" json:"-"`
	Email       string     `gorm:"not null;index" json:"email"`
	AccountName string     `gorm:"not null;size:255" json:"account_name"`
	ContractRef string     `gorm:"size:100" json:"contract_ref,omitempty"`
	Role        string     `gorm:"not null;default:'owner'" json:"role"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid;not null;index" json:"created_by"`
	ExpiresAt   time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	UsedBy      *uuid.UUID `gorm:"type:uuid" json:"used_by,omitempty"`
	AccountID   *uuid.UUID `gorm:"type:uuid" json:"account_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (PostSaleToken) TableName() string {
	return "post_sale_tokens"
}

func (t *PostSaleToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	}
	return nil
}

func (t *PostSaleToken) AfterFind(tx *gorm.DB) error {
	t.Role = NormalizeRole(t.Role)
	return nil
}

// AccessView is a denormalized allow/deny verdict maintained by an upstream
// projection. When a row exists for (account, user) its verdict is final.
type AccessView struct {
	AccountID   uuid.UUID `gorm:"type:uuid;primary_key" json:"account_id"`
	UserID      uuid.UUID `gorm:"type:uuid;primary_key" json:"user_id"`
	Allow       bool      `gorm:"not null" json:"allow"`
	Reason      string    `gorm:"size:100" json:"reason"`
	Role        string    `gorm:"not null;default:'viewer'" json:"role"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

func (AccessView) TableName() string {
	return "account_access_view"
}

func (v *AccessView) AfterFind(tx *gorm.DB) error {
	v.Role = NormalizeRole(v.Role)
	return nil
}

// User is the local identity record backing onboarding.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"size:255" json:"name"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "access_users"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// ActivityLog records denied decisions and token lifecycle transitions.
type ActivityLog struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	AccountID *uuid.UUID `gorm:"type:uuid;index" json:"account_id,omitempty"`
	UserID    *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Event     string     `gorm:"not null;size:100" json:"event"`
	Details   JSONB      `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "account_activity_logs"
}

func (l *ActivityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// AccountSummary is the cached, presentation-ready view of one membership.
type AccountSummary struct {
	AccountID uuid.UUID `json:"account_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Role      string    `json:"role"`
}

func (a *Account) String() string {
	return fmt.Sprintf("%s (%s)", a.Slug, a.Status)
}
