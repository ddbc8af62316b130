package models

import (
	"time"

	"gorm.io/gorm"
)

// Tenant statuses
const (
	TenantPending   = "pending"
	TenantActive    = "active"
	TenantSuspended = "suspended"
	TenantCancelled = "cancelled"
)

// Tenant is the master catalog row for one isolated customer. The database
// credentials are generated during provisioning and never supplied by users.
type Tenant struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Name               string         `gorm:"size:150;not null" json:"name"`
	Slug               string         `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Code               string         `gorm:"size:32;uniqueIndex;not null" json:"code"`
	Domain             *string        `gorm:"size:255;uniqueIndex" json:"domain,omitempty"`
	Subdomain          *string        `gorm:"size:100;uniqueIndex" json:"subdomain,omitempty"`
	Status             string         `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	TrialEndsAt        *time.Time     `json:"trial_ends_at,omitempty"`
	SubscriptionEndsAt *time.Time     `json:"subscription_ends_at,omitempty"`
	MaxUsers           int            `gorm:"not null;default:0" json:"max_users"`
	MaxProducts        int            `gorm:"not null;default:0" json:"max_products"`
	MaxTransactions    int            `gorm:"not null;default:0" json:"max_transactions"`
	DBName             string         `gorm:"size:64" json:"db_name"`
	DBUsername         string         `gorm:"size:64" json:"-"`
	DBPassword         string         `gorm:"size:128" json:"-"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasAccess reports whether the tenant is active and its subscription or trial
// still runs at now. A paid subscription takes precedence over the trial.
func (t *Tenant) HasAccess(now time.Time) bool {
	if t.Status != TenantActive {
		return false
	}
	if t.SubscriptionEndsAt != nil {
		return now.Before(*t.SubscriptionEndsAt)
	}
	if t.TrialEndsAt != nil {
		return now.Before(*t.TrialEndsAt)
	}
	return true
}

// User roles
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleCashier    = "cashier"
)

// User - The person interacting with the system. Lives in the master catalog;
// TenantID is nil only for platform staff.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50" json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `gorm:"size:20" json:"role"`
	TenantID     *uint     `gorm:"index" json:"tenant_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MasterModels is the migration set for the master catalog database.
func MasterModels() []interface{} {
	return []interface{}{&Tenant{}, &User{}}
}
