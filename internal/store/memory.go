// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendora/backend/internal/models"
)

// Memory is an in-process Store. It backs tests and serves as a degraded-mode
// fallback when no database is reachable. A single mutex makes every
// read-check-write sequence atomic, which is what the conditional-update
// contract requires.
type Memory struct {
	mtx      sync.Mutex
	tokens   map[string]*models.DownloadToken
	licenses map[string]*models.License
	audits   []models.AuditLog
	orders   map[uuid.UUID]*models.Order
	products map[uuid.UUID]*models.Product
}

func NewMemory() *Memory {
	return &Memory{
		tokens:   make(map[string]*models.DownloadToken),
		licenses: make(map[string]*models.License),
		orders:   make(map[uuid.UUID]*models.Order),
		products: make(map[uuid.UUID]*models.Product),
	}
}

func cloneToken(t *models.DownloadToken) *models.DownloadToken {
	c := *t
	if t.ClientInfo.FirstAccessedAt != nil {
		at := *t.ClientInfo.FirstAccessedAt
		c.ClientInfo.FirstAccessedAt = &at
	}
	if t.ClientInfo.LastAccessedAt != nil {
		at := *t.ClientInfo.LastAccessedAt
		c.ClientInfo.LastAccessedAt = &at
	}
	return &c
}

func cloneLicense(l *models.License) *models.License {
	c := *l
	c.Activations = append([]models.Activation(nil), l.Activations...)
	c.Features = append([]string(nil), l.Features...)
	return &c
}

// TokenStore

func (m *Memory) CreateToken(_ context.Context, token *models.DownloadToken) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()
	token.UpdatedAt = token.CreatedAt
	m.tokens[token.Token] = cloneToken(token)
	return nil
}

func (m *Memory) GetToken(_ context.Context, tokenValue string) (*models.DownloadToken, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	t, ok := m.tokens[tokenValue]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneToken(t), nil
}

func (m *Memory) ConsumeAccessCode(_ context.Context, tokenValue string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	t, ok := m.tokens[tokenValue]
	if !ok {
		return ErrNotFound
	}
	if t.AccessCodeUsed {
		return ErrConflict
	}
	t.AccessCodeUsed = true
	t.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) RecordDownload(_ context.Context, tokenValue string, info models.ClientInfo) (*models.DownloadToken, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	t, ok := m.tokens[tokenValue]
	if !ok {
		return nil, ErrNotFound
	}
	if !t.IsValidForDownload() {
		return nil, ErrConflict
	}
	t.DownloadCount++
	t.RecordAccess(info)
	t.UpdatedAt = time.Now()
	return cloneToken(t), nil
}

func (m *Memory) FlagSecurity(_ context.Context, tokenValue, reason string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	t, ok := m.tokens[tokenValue]
	if !ok {
		return ErrNotFound
	}
	t.SecurityFlags.SuspiciousActivity = true
	t.SecurityFlags.FlaggedReason = reason
	t.IsActive = false
	t.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) DeactivateToken(_ context.Context, tokenValue string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	t, ok := m.tokens[tokenValue]
	if !ok {
		return ErrNotFound
	}
	t.IsActive = false
	t.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) OrderDownloadStats(_ context.Context, orderID uuid.UUID) (*DownloadStats, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	stats := &DownloadStats{}
	now := time.Now()
	for _, t := range m.tokens {
		if t.OrderID != orderID {
			continue
		}
		stats.UniqueTokens++
		stats.TotalDownloads += int64(t.DownloadCount)
		if now.After(t.ExpiresAt) {
			stats.ExpiredTokens++
		} else {
			stats.ActiveTokens++
		}
	}
	return stats, nil
}

func (m *Memory) CountTokens(_ context.Context, activeOnly bool) (int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if !activeOnly {
		return int64(len(m.tokens)), nil
	}
	var n int64
	now := time.Now()
	for _, t := range m.tokens {
		if t.IsActive && !now.After(t.ExpiresAt) {
			n++
		}
	}
	return n, nil
}

// LicenseStore

func (m *Memory) CreateLicense(_ context.Context, license *models.License) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if license.ID == uuid.Nil {
		license.ID = uuid.New()
	}
	license.CreatedAt = time.Now()
	license.UpdatedAt = license.CreatedAt
	m.licenses[license.LicenseKey] = cloneLicense(license)
	return nil
}

func (m *Memory) GetLicense(_ context.Context, licenseKey string) (*models.License, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	l, ok := m.licenses[licenseKey]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLicense(l), nil
}

func (m *Memory) MutateLicense(_ context.Context, licenseKey string, fn func(*models.License) error) (*models.License, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	l, ok := m.licenses[licenseKey]
	if !ok {
		return nil, ErrNotFound
	}

	// fn runs on a copy so a failed mutation leaves the stored state intact.
	next := cloneLicense(l)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Lock = l.Lock + 1
	next.UpdatedAt = time.Now()
	m.licenses[licenseKey] = next
	return cloneLicense(next), nil
}

func (m *Memory) CountLicenses(_ context.Context, status models.LicenseStatus) (int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	var n int64
	for _, l := range m.licenses {
		if status == "" || l.Status == status {
			n++
		}
	}
	return n, nil
}

// AuditStore

func (m *Memory) RecordAudit(_ context.Context, entry *models.AuditLog) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	entry.CreatedAt = time.Now()
	m.audits = append(m.audits, *entry)
	return nil
}

func (m *Memory) CountDownloadsByIPSince(_ context.Context, ip string, since time.Time) (int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	var n int64
	for i := range m.audits {
		e := &m.audits[i]
		if e.EventType == models.AuditEventDownload && e.Success &&
			e.ClientInfo.IP == ip && !e.OccurredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListAudits(_ context.Context, filter AuditFilter) ([]models.AuditLog, int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	var matched []models.AuditLog
	for i := range m.audits {
		e := m.audits[i]
		if filter.OrderID != nil && e.OrderID != *filter.OrderID {
			continue
		}
		if filter.CustomerEmail != "" && e.CustomerEmail != filter.CustomerEmail {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.From != nil && e.OccurredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.OccurredAt.After(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

// OrderStore

func (m *Memory) CreateOrder(_ context.Context, order *models.Order) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	c := *order
	m.orders[order.ID] = &c
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *o
	return &c, nil
}

func (m *Memory) UpdateOrder(_ context.Context, order *models.Order) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if _, ok := m.orders[order.ID]; !ok {
		return ErrNotFound
	}
	order.UpdatedAt = time.Now()
	c := *order
	m.orders[order.ID] = &c
	return nil
}

func (m *Memory) CountOrders(_ context.Context) (int64, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return int64(len(m.orders)), nil
}

// ProductStore

func (m *Memory) CreateProduct(_ context.Context, product *models.Product) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	c := *product
	m.products[product.ID] = &c
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *Memory) ListProducts(_ context.Context, activeOnly bool) ([]models.Product, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	var out []models.Product
	for _, p := range m.products {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
