package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/jackc/pgx/v5"
)

type QRCodeRepository interface {
	Create(ctx context.Context, code *models.QRCode) error
	GetByID(ctx context.Context, id string) (*models.QRCode, error)
	List(ctx context.Context) ([]models.QRCodeSummary, error)
	UpdateStyle(ctx context.Context, code *models.QRCode) error
	Delete(ctx context.Context, id string) error
}

type qrCodeRepository struct {
	db *PostgresDB
}

func NewQRCodeRepository(db *PostgresDB) QRCodeRepository {
	return &qrCodeRepository{db: db}
}

func (r *qrCodeRepository) Create(ctx context.Context, code *models.QRCode) error {
	style, err := json.Marshal(code.Style)
	if err != nil {
		return fmt.Errorf("failed to marshal style: %w", err)
	}

	query := `
		INSERT INTO qr_codes (id, name, target_url, style)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query, code.ID, code.Name, code.TargetURL, style).
		Scan(&code.CreatedAt, &code.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create qr code: %w", err)
	}

	return nil
}

func (r *qrCodeRepository) GetByID(ctx context.Context, id string) (*models.QRCode, error) {
	query := `
		SELECT id, name, target_url, style, created_at, updated_at
		FROM qr_codes
		WHERE id = $1
	`

	code := &models.QRCode{}
	var style []byte
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&code.ID,
		&code.Name,
		&code.TargetURL,
		&style,
		&code.CreatedAt,
		&code.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get qr code: %w", err)
	}

	if err := json.Unmarshal(style, &code.Style); err != nil {
		return nil, fmt.Errorf("failed to unmarshal style: %w", err)
	}

	return code, nil
}

func (r *qrCodeRepository) List(ctx context.Context) ([]models.QRCodeSummary, error) {
	query := `
		SELECT q.id, q.name, q.target_url, q.style, q.created_at, q.updated_at,
			COUNT(a.id) AS total_clicks,
			COUNT(a.id) FILTER (WHERE a.is_unique_visitor) AS unique_visitors
		FROM qr_codes q
		LEFT JOIN access_logs a ON a.entity_kind = 'qr' AND a.entity_id = q.id
		GROUP BY q.id
		ORDER BY q.created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list qr codes: %w", err)
	}
	defer rows.Close()

	codes := []models.QRCodeSummary{}
	for rows.Next() {
		var item models.QRCodeSummary
		var style []byte
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.TargetURL,
			&style,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.TotalClicks,
			&item.UniqueVisitors,
		); err != nil {
			return nil, fmt.Errorf("failed to scan qr code: %w", err)
		}
		if err := json.Unmarshal(style, &item.Style); err != nil {
			return nil, fmt.Errorf("failed to unmarshal style: %w", err)
		}
		codes = append(codes, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating qr codes: %w", err)
	}

	return codes, nil
}

// UpdateStyle сохраняет стиль и обновляет updated_at (от него зависит ETag картинки)
func (r *qrCodeRepository) UpdateStyle(ctx context.Context, code *models.QRCode) error {
	style, err := json.Marshal(code.Style)
	if err != nil {
		return fmt.Errorf("failed to marshal style: %w", err)
	}

	query := `
		UPDATE qr_codes SET style = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.db.Pool.QueryRow(ctx, query, code.ID, style).Scan(&code.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update qr style: %w", err)
	}

	return nil
}

// Delete удаляет QR-код вместе с его журналом переходов
func (r *qrCodeRepository) Delete(ctx context.Context, id string) error {
	return deleteWithLogs(ctx, r.db, models.EntityQRCode, `DELETE FROM qr_codes WHERE id = $1`, id)
}

func deleteWithLogs(ctx context.Context, db *PostgresDB, kind models.EntityKind, query, id string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM access_logs WHERE entity_kind = $1 AND entity_id = $2`,
		string(kind), id,
	); err != nil {
		return fmt.Errorf("failed to delete access logs: %w", err)
	}

	return tx.Commit(ctx)
}
