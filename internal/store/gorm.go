// internal/store/gorm.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendora/backend/internal/models"
)

// Gorm is the PostgreSQL-backed Store. Conditional updates are expressed as
// UPDATE ... WHERE <precondition> with the affected-row count checked, so the
// invariants hold under concurrent requests without cross-request locks.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// TokenStore

func (g *Gorm) CreateToken(ctx context.Context, token *models.DownloadToken) error {
	if err := g.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to create download token: %w", err)
	}
	return nil
}

func (g *Gorm) GetToken(ctx context.Context, tokenValue string) (*models.DownloadToken, error) {
	var token models.DownloadToken
	err := g.db.WithContext(ctx).Where("token = ?", tokenValue).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch download token: %w", err)
	}
	return &token, nil
}

func (g *Gorm) ConsumeAccessCode(ctx context.Context, tokenValue string) error {
	res := g.db.WithContext(ctx).Model(&models.DownloadToken{}).
		Where("token = ? AND access_code_used = ?", tokenValue, false).
		Update("access_code_used", true)
	if res.Error != nil {
		return fmt.Errorf("failed to consume access code: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.GetToken(ctx, tokenValue); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (g *Gorm) RecordDownload(ctx context.Context, tokenValue string, info models.ClientInfo) (*models.DownloadToken, error) {
	now := time.Now()

	// The precondition mirrors DownloadToken.IsValidForDownload and is
	// re-checked at commit time inside this single UPDATE.
	res := g.db.WithContext(ctx).Model(&models.DownloadToken{}).
		Where("token = ? AND is_active = ? AND flag_suspicious_activity = ? AND expires_at >= ? AND download_count < max_downloads",
			tokenValue, true, false, now).
		Updates(map[string]interface{}{
			"download_count":           gorm.Expr("download_count + 1"),
			"client_ip":                info.IP,
			"client_user_agent":        info.UserAgent,
			"client_platform":          info.Platform,
			"client_browser":           info.Browser,
			"client_first_accessed_at": gorm.Expr("COALESCE(client_first_accessed_at, ?)", now),
			"client_last_accessed_at":  now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to record download: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.GetToken(ctx, tokenValue); err != nil {
			return nil, err
		}
		return nil, ErrConflict
	}
	return g.GetToken(ctx, tokenValue)
}

func (g *Gorm) FlagSecurity(ctx context.Context, tokenValue, reason string) error {
	res := g.db.WithContext(ctx).Model(&models.DownloadToken{}).
		Where("token = ?", tokenValue).
		Updates(map[string]interface{}{
			"flag_suspicious_activity": true,
			"flag_flagged_reason":      reason,
			"is_active":                false,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to flag token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) DeactivateToken(ctx context.Context, tokenValue string) error {
	res := g.db.WithContext(ctx).Model(&models.DownloadToken{}).
		Where("token = ?", tokenValue).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) OrderDownloadStats(ctx context.Context, orderID uuid.UUID) (*DownloadStats, error) {
	var stats DownloadStats
	now := time.Now()

	row := g.db.WithContext(ctx).Model(&models.DownloadToken{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(download_count), 0), COUNT(*), COUNT(*) FILTER (WHERE expires_at >= ?), COUNT(*) FILTER (WHERE expires_at < ?)", now, now).
		Row()
	if err := row.Scan(&stats.TotalDownloads, &stats.UniqueTokens, &stats.ActiveTokens, &stats.ExpiredTokens); err != nil {
		return nil, fmt.Errorf("failed to aggregate download stats: %w", err)
	}
	return &stats, nil
}

func (g *Gorm) CountTokens(ctx context.Context, activeOnly bool) (int64, error) {
	query := g.db.WithContext(ctx).Model(&models.DownloadToken{})
	if activeOnly {
		query = query.Where("is_active = ? AND expires_at >= ?", true, time.Now())
	}
	var n int64
	if err := query.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return n, nil
}

// LicenseStore

func (g *Gorm) CreateLicense(ctx context.Context, license *models.License) error {
	if err := g.db.WithContext(ctx).Create(license).Error; err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}
	return nil
}

func (g *Gorm) GetLicense(ctx context.Context, licenseKey string) (*models.License, error) {
	var license models.License
	err := g.db.WithContext(ctx).Preload("Activations").
		Where("license_key = ?", licenseKey).First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch license: %w", err)
	}
	return &license, nil
}

func (g *Gorm) MutateLicense(ctx context.Context, licenseKey string, fn func(*models.License) error) (*models.License, error) {
	var out *models.License

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var license models.License

		// Row lock serializes concurrent activation attempts on one license.
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("license_key = ?", licenseKey).First(&license).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock license: %w", err)
		}
		if err := tx.Model(&license).Association("Activations").Find(&license.Activations); err != nil {
			return fmt.Errorf("failed to load activations: %w", err)
		}

		if err := fn(&license); err != nil {
			return err
		}

		license.Lock++
		if err := tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(&license).Error; err != nil {
			return fmt.Errorf("failed to save license: %w", err)
		}
		out = &license
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gorm) CountLicenses(ctx context.Context, status models.LicenseStatus) (int64, error) {
	query := g.db.WithContext(ctx).Model(&models.License{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var n int64
	if err := query.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count licenses: %w", err)
	}
	return n, nil
}

// AuditStore

func (g *Gorm) RecordAudit(ctx context.Context, entry *models.AuditLog) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	if err := g.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

func (g *Gorm) CountDownloadsByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&models.AuditLog{}).
		Where("event_type = ? AND success = ? AND client_ip = ? AND occurred_at >= ?",
			models.AuditEventDownload, true, ip, since).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count recent downloads: %w", err)
	}
	return n, nil
}

func (g *Gorm) ListAudits(ctx context.Context, filter AuditFilter) ([]models.AuditLog, int64, error) {
	query := g.db.WithContext(ctx).Model(&models.AuditLog{})

	if filter.OrderID != nil {
		query = query.Where("order_id = ?", *filter.OrderID)
	}
	if filter.CustomerEmail != "" {
		query = query.Where("customer_email = ?", filter.CustomerEmail)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.From != nil {
		query = query.Where("occurred_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("occurred_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query = query.Order("occurred_at DESC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []models.AuditLog
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit entries: %w", err)
	}
	return entries, total, nil
}

// OrderStore

func (g *Gorm) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := g.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (g *Gorm) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := g.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch order: %w", err)
	}
	return &order, nil
}

func (g *Gorm) UpdateOrder(ctx context.Context, order *models.Order) error {
	if err := g.db.WithContext(ctx).Save(order).Error; err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

func (g *Gorm) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.Order{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

// ProductStore

func (g *Gorm) CreateProduct(ctx context.Context, product *models.Product) error {
	if err := g.db.WithContext(ctx).Create(product).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (g *Gorm) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := g.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch product: %w", err)
	}
	return &product, nil
}

func (g *Gorm) ListProducts(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	query := g.db.WithContext(ctx).Model(&models.Product{}).Order("name")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}
