package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/jackc/pgx/v5"
)

type AffiliateRepository interface {
	Create(ctx context.Context, link *models.AffiliateLink) error
	GetByID(ctx context.Context, id string) (*models.AffiliateLink, error)
	GetBySlug(ctx context.Context, slug string) (*models.AffiliateLink, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, filter models.AffiliateFilter) ([]models.AffiliateSummary, error)
	Update(ctx context.Context, link *models.AffiliateLink) error
	Delete(ctx context.Context, id string) error
}

type affiliateRepository struct {
	db *PostgresDB
}

func NewAffiliateRepository(db *PostgresDB) AffiliateRepository {
	return &affiliateRepository{db: db}
}

const affiliateColumns = `id, slug, product_name, product_image, affiliate_url, category, notes,
	created_by, is_active, created_at, updated_at`

func (r *affiliateRepository) Create(ctx context.Context, link *models.AffiliateLink) error {
	query := `
		INSERT INTO affiliate_links
			(id, slug, product_name, product_image, affiliate_url, category, notes, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		link.ID,
		link.Slug,
		link.ProductName,
		link.ProductImage,
		link.AffiliateURL,
		link.Category,
		link.Notes,
		link.CreatedBy,
		link.IsActive,
	).Scan(&link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugExists
		}
		return fmt.Errorf("failed to create affiliate link: %w", err)
	}

	return nil
}

func (r *affiliateRepository) GetByID(ctx context.Context, id string) (*models.AffiliateLink, error) {
	return r.getOne(ctx, `SELECT `+affiliateColumns+` FROM affiliate_links WHERE id = $1`, id)
}

func (r *affiliateRepository) GetBySlug(ctx context.Context, slug string) (*models.AffiliateLink, error) {
	return r.getOne(ctx, `SELECT `+affiliateColumns+` FROM affiliate_links WHERE slug = $1`, slug)
}

func (r *affiliateRepository) getOne(ctx context.Context, query, arg string) (*models.AffiliateLink, error) {
	link, err := scanAffiliate(r.db.Pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get affiliate link: %w", err)
	}
	return link, nil
}

func (r *affiliateRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM affiliate_links WHERE slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// List возвращает ссылки (недавно обновлённые первыми) со счётчиками переходов
func (r *affiliateRepository) List(ctx context.Context, filter models.AffiliateFilter) ([]models.AffiliateSummary, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		conds = append(conds, fmt.Sprintf("l.created_by = $%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		conds = append(conds, fmt.Sprintf("l.category = $%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("l.is_active = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := `
		SELECT l.id, l.slug, l.product_name, l.product_image, l.affiliate_url, l.category, l.notes,
			l.created_by, l.is_active, l.created_at, l.updated_at,
			COUNT(a.id) AS total_clicks,
			COUNT(a.id) FILTER (WHERE a.is_unique_visitor) AS unique_visitors
		FROM affiliate_links l
		LEFT JOIN access_logs a ON a.entity_kind = 'affiliate' AND a.entity_id = l.id
		` + where + `
		GROUP BY l.id
		ORDER BY l.updated_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list affiliate links: %w", err)
	}
	defer rows.Close()

	links := []models.AffiliateSummary{}
	for rows.Next() {
		var item models.AffiliateSummary
		if err := rows.Scan(
			&item.ID,
			&item.Slug,
			&item.ProductName,
			&item.ProductImage,
			&item.AffiliateURL,
			&item.Category,
			&item.Notes,
			&item.CreatedBy,
			&item.IsActive,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.TotalClicks,
			&item.UniqueVisitors,
		); err != nil {
			return nil, fmt.Errorf("failed to scan affiliate link: %w", err)
		}
		links = append(links, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating affiliate links: %w", err)
	}

	return links, nil
}

func (r *affiliateRepository) Update(ctx context.Context, link *models.AffiliateLink) error {
	query := `
		UPDATE affiliate_links SET
			product_name = $2,
			product_image = $3,
			affiliate_url = $4,
			category = $5,
			notes = $6,
			is_active = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		link.ID,
		link.ProductName,
		link.ProductImage,
		link.AffiliateURL,
		link.Category,
		link.Notes,
		link.IsActive,
	).Scan(&link.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update affiliate link: %w", err)
	}

	return nil
}

func (r *affiliateRepository) Delete(ctx context.Context, id string) error {
	return deleteWithLogs(ctx, r.db, models.EntityAffiliate, `DELETE FROM affiliate_links WHERE id = $1`, id)
}

func scanAffiliate(row pgx.Row) (*models.AffiliateLink, error) {
	link := &models.AffiliateLink{}
	err := row.Scan(
		&link.ID,
		&link.Slug,
		&link.ProductName,
		&link.ProductImage,
		&link.AffiliateURL,
		&link.Category,
		&link.Notes,
		&link.CreatedBy,
		&link.IsActive,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return link, nil
}
