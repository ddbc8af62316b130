package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go-pos-tenancy/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ErrInvalidSlug is returned when a slug or subdomain is not a lowercase DNS label.
var ErrInvalidSlug = errors.New("slug must be lowercase letters, digits and single dashes")

// NewTenant is the input for creating a tenant.
type NewTenant struct {
	Name            string     `json:"name" binding:"required"`
	Slug            string     `json:"slug" binding:"required"`
	Domain          *string    `json:"domain"`
	Subdomain       *string    `json:"subdomain"`
	TrialEndsAt     *time.Time `json:"trial_ends_at"`
	MaxUsers        int        `json:"max_users"`
	MaxProducts     int        `json:"max_products"`
	MaxTransactions int        `json:"max_transactions"`
}

// Limits is the mutable plan limits of a tenant. Zero means unlimited.
type Limits struct {
	MaxUsers        int `json:"max_users"`
	MaxProducts     int `json:"max_products"`
	MaxTransactions int `json:"max_transactions"`
}

// Registry is the master catalog of tenants.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a registry over the master database
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) first(ctx context.Context, query string, args ...interface{}) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.WithContext(ctx).Where(query, args...).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindBySlug looks a tenant up by slug
func (r *Registry) FindBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return r.first(ctx, "slug = ?", strings.ToLower(slug))
}

// FindByID looks a tenant up by primary key
func (r *Registry) FindByID(ctx context.Context, id uint) (*models.Tenant, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByCode looks a tenant up by its opaque code
func (r *Registry) FindByCode(ctx context.Context, code string) (*models.Tenant, error) {
	return r.first(ctx, "code = ?", code)
}

// FindBySubdomain looks a tenant up by subdomain label
func (r *Registry) FindBySubdomain(ctx context.Context, sub string) (*models.Tenant, error) {
	return r.first(ctx, "subdomain = ?", strings.ToLower(sub))
}

// FindByDomain looks a tenant up by exact custom domain
func (r *Registry) FindByDomain(ctx context.Context, host string) (*models.Tenant, error) {
	return r.first(ctx, "domain = ?", strings.ToLower(host))
}

// List returns tenants ordered by newest first
func (r *Registry) List(ctx context.Context) ([]models.Tenant, error) {
	var out []models.Tenant
	err := r.db.WithContext(ctx).Order("id desc").Find(&out).Error
	return out, err
}

// Create inserts a pending tenant with a freshly generated code.
func (r *Registry) Create(ctx context.Context, in NewTenant) (*models.Tenant, error) {
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}
	if in.Subdomain != nil {
		sub := strings.ToLower(strings.TrimSpace(*in.Subdomain))
		if !slugPattern.MatchString(sub) {
			return nil, ErrInvalidSlug
		}
		in.Subdomain = &sub
	}
	if in.Domain != nil {
		d := strings.ToLower(strings.TrimSpace(*in.Domain))
		in.Domain = &d
	}

	t := &models.Tenant{
		Name:            strings.TrimSpace(in.Name),
		Slug:            slug,
		Code:            newCode(),
		Domain:          in.Domain,
		Subdomain:       in.Subdomain,
		Status:          models.TenantPending,
		TrialEndsAt:     in.TrialEndsAt,
		MaxUsers:        in.MaxUsers,
		MaxProducts:     in.MaxProducts,
		MaxTransactions: in.MaxTransactions,
	}
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, fmt.Errorf("create tenant %q: %w", slug, err)
	}
	return t, nil
}

// newCode returns a 12 character lowercase hex code; safe inside SQL identifiers.
func newCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// UpdateStatus changes a tenant's status
func (r *Registry) UpdateStatus(ctx context.Context, id uint, status string) (*models.Tenant, error) {
	switch status {
	case models.TenantPending, models.TenantActive, models.TenantSuspended, models.TenantCancelled:
	default:
		return nil, fmt.Errorf("unknown tenant status %q", status)
	}
	return r.update(ctx, id, map[string]interface{}{"status": status})
}

// UpdateLimits replaces a tenant's plan limits
func (r *Registry) UpdateLimits(ctx context.Context, id uint, l Limits) (*models.Tenant, error) {
	return r.update(ctx, id, map[string]interface{}{
		"max_users":        l.MaxUsers,
		"max_products":     l.MaxProducts,
		"max_transactions": l.MaxTransactions,
	})
}

// ExtendTrial pushes the trial end by days, counting from now when the trial already lapsed.
func (r *Registry) ExtendTrial(ctx context.Context, id uint, days int, now time.Time) (*models.Tenant, error) {
	if days <= 0 {
		return nil, fmt.Errorf("trial extension must be positive, got %d", days)
	}
	t, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	base := now
	if t.TrialEndsAt != nil && t.TrialEndsAt.After(now) {
		base = *t.TrialEndsAt
	}
	return r.update(ctx, id, map[string]interface{}{"trial_ends_at": base.AddDate(0, 0, days)})
}

// SaveCredentials stores generated database credentials. Existing credentials are
// never overwritten, so concurrent first provisioning converges on one set.
func (r *Registry) SaveCredentials(ctx context.Context, t *models.Tenant) error {
	res := r.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND (db_password IS NULL OR db_password = '')", t.ID).
		Updates(map[string]interface{}{
			"db_name":     t.DBName,
			"db_username": t.DBUsername,
			"db_password": t.DBPassword,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Someone else won; adopt what is stored.
		stored, err := r.FindByID(ctx, t.ID)
		if err != nil {
			return err
		}
		t.DBName, t.DBUsername, t.DBPassword = stored.DBName, stored.DBUsername, stored.DBPassword
	}
	return nil
}

// Delete hard-deletes the tenant row. Only used together with dropping its database.
func (r *Registry) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&models.Tenant{}, id).Error
}

func (r *Registry) update(ctx context.Context, id uint, fields map[string]interface{}) (*models.Tenant, error) {
	if _, err := r.FindByID(ctx, id); err != nil {
		return nil, err
	}
	// MySQL reports zero affected rows when nothing changed, so existence is checked up front.
	if err := r.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}
