package tenant

import (
	"context"
	"fmt"

	"go-pos-tenancy/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Provisioner creates and removes tenant databases.
type Provisioner interface {
	Provision(ctx context.Context, t *models.Tenant) (*gorm.DB, error)
	Drop(ctx context.Context, t *models.Tenant) error
}

// Lifecycle drives tenants through onboarding, suspension and removal.
type Lifecycle struct {
	registry    *Registry
	provisioner Provisioner
	log         *zap.Logger
}

// NewLifecycle wires the registry to a provisioner
func NewLifecycle(registry *Registry, provisioner Provisioner, log *zap.Logger) *Lifecycle {
	return &Lifecycle{registry: registry, provisioner: provisioner, log: log}
}

// Onboard creates the tenant row, provisions its database and activates it.
// When provisioning fails the tenant stays pending so it can be retried.
func (l *Lifecycle) Onboard(ctx context.Context, in NewTenant) (*models.Tenant, error) {
	t, err := l.registry.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := l.provision(ctx, t); err != nil {
		return t, err
	}
	return l.registry.UpdateStatus(ctx, t.ID, models.TenantActive)
}

// Retry provisions a tenant left pending by a failed onboarding.
func (l *Lifecycle) Retry(ctx context.Context, id uint) (*models.Tenant, error) {
	t, err := l.registry.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.provision(ctx, t); err != nil {
		return t, err
	}
	if t.Status == models.TenantPending {
		return l.registry.UpdateStatus(ctx, t.ID, models.TenantActive)
	}
	return t, nil
}

func (l *Lifecycle) provision(ctx context.Context, t *models.Tenant) error {
	if _, err := l.provisioner.Provision(ctx, t); err != nil {
		l.log.Error("Tenant provisioning failed",
			zap.String("tenant", t.Code), zap.String("slug", t.Slug), zap.Error(err))
		return Wrap(ErrProvisioningFailed, err, "")
	}
	l.log.Info("Tenant provisioned", zap.String("tenant", t.Code), zap.String("database", t.DBName))
	return nil
}

// Suspend blocks access without touching data
func (l *Lifecycle) Suspend(ctx context.Context, id uint) (*models.Tenant, error) {
	return l.registry.UpdateStatus(ctx, id, models.TenantSuspended)
}

// Activate restores access to a suspended tenant
func (l *Lifecycle) Activate(ctx context.Context, id uint) (*models.Tenant, error) {
	return l.registry.UpdateStatus(ctx, id, models.TenantActive)
}

// Cancel ends the subscription; the database is kept until Destroy.
func (l *Lifecycle) Cancel(ctx context.Context, id uint) (*models.Tenant, error) {
	return l.registry.UpdateStatus(ctx, id, models.TenantCancelled)
}

// Destroy drops the tenant database and removes the tenant row.
func (l *Lifecycle) Destroy(ctx context.Context, id uint) error {
	t, err := l.registry.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := l.provisioner.Drop(ctx, t); err != nil {
		return fmt.Errorf("drop tenant %s database: %w", t.Code, err)
	}
	if err := l.registry.Delete(ctx, id); err != nil {
		return err
	}
	l.log.Info("Tenant destroyed", zap.String("tenant", t.Code), zap.String("slug", t.Slug))
	return nil
}
