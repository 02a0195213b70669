package repository

import (
	"context"
	"fmt"

	"github.com/SergeiKhy/linktrack/internal/models"
	"github.com/jackc/pgx/v5"
)

// StatsDays глубина дневной статистики
const StatsDays = 30

// Колонки, по которым разрешена группировка
const (
	GroupByDevice        = "device"
	GroupByCountry       = "country"
	GroupByScanMethod    = "scan_method"
	GroupBySocialNetwork = "social_network"
)

var groupColumns = map[string]bool{
	GroupByDevice:        true,
	GroupByCountry:       true,
	GroupByScanMethod:    true,
	GroupBySocialNetwork: true,
}

type AccessLogRepository interface {
	HasPriorAccess(ctx context.Context, kind models.EntityKind, entityID, ipHash string) (bool, error)
	Insert(ctx context.Context, log *models.AccessLog) error
	InsertBatch(ctx context.Context, logs []*models.AccessLog) error
	Counts(ctx context.Context, kind models.EntityKind, entityID string) (models.AccessCounts, error)
	Daily(ctx context.Context, kind models.EntityKind, entityID, timezone string) ([]models.DailyCount, error)
	GroupBy(ctx context.Context, kind models.EntityKind, entityID, column string) ([]models.Bucket, error)
	Recent(ctx context.Context, kind models.EntityKind, entityID string, limit int) ([]models.AccessLog, error)
}

type accessLogRepository struct {
	db *PostgresDB
}

func NewAccessLogRepository(db *PostgresDB) AccessLogRepository {
	return &accessLogRepository{db: db}
}

const insertAccessLog = `
	INSERT INTO access_logs (
		entity_kind, entity_id, ip_hash, session_id, is_unique_visitor,
		user_agent, device, is_mobile, browser, browser_version, platform, os_version,
		country, region, city, timezone, latitude, longitude,
		referer, utm_source, utm_medium, utm_campaign, utm_term, utm_content,
		social_network, language, scan_method, is_bot, response_time_ms, accessed_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18,
		$19, $20, $21, $22, $23, $24,
		$25, $26, $27, $28, $29, $30
	)
	RETURNING id
`

// HasPriorAccess true, если с этого ip_hash уже был переход на сущность
func (r *accessLogRepository) HasPriorAccess(ctx context.Context, kind models.EntityKind, entityID, ipHash string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM access_logs
			WHERE entity_kind = $1 AND entity_id = $2 AND ip_hash = $3
		)
	`

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, query, string(kind), entityID, ipHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check prior access: %w", err)
	}
	return exists, nil
}

func (r *accessLogRepository) Insert(ctx context.Context, log *models.AccessLog) error {
	if err := r.db.Pool.QueryRow(ctx, insertAccessLog, insertArgs(log)...).Scan(&log.ID); err != nil {
		return fmt.Errorf("failed to insert access log: %w", err)
	}
	return nil
}

// InsertBatch пишет пачку записей в одной транзакции: либо все, либо ни одной
func (r *accessLogRepository) InsertBatch(ctx context.Context, logs []*models.AccessLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, log := range logs {
		batch.Queue(insertAccessLog, insertArgs(log)...)
	}

	br := tx.SendBatch(ctx, batch)
	for _, log := range logs {
		if err := br.QueryRow().Scan(&log.ID); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert access log batch: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit access log batch: %w", err)
	}
	return nil
}

func (r *accessLogRepository) Counts(ctx context.Context, kind models.EntityKind, entityID string) (models.AccessCounts, error) {
	query := `
		SELECT
			COUNT(*) AS total_clicks,
			COUNT(*) FILTER (WHERE is_unique_visitor) AS unique_visitors
		FROM access_logs
		WHERE entity_kind = $1 AND entity_id = $2
	`

	var counts models.AccessCounts
	if err := r.db.Pool.QueryRow(ctx, query, string(kind), entityID).Scan(&counts.Total, &counts.Unique); err != nil {
		return counts, fmt.Errorf("failed to get access counts: %w", err)
	}
	return counts, nil
}

// Daily переходы по дням за последние StatsDays дней; день считается в часовом поясе timezone
func (r *accessLogRepository) Daily(ctx context.Context, kind models.EntityKind, entityID, timezone string) ([]models.DailyCount, error) {
	query := `
		SELECT
			to_char(accessed_at AT TIME ZONE $3, 'YYYY-MM-DD') AS day,
			COUNT(*) AS clicks
		FROM access_logs
		WHERE entity_kind = $1 AND entity_id = $2
			AND accessed_at >= NOW() - INTERVAL '1 day' * $4
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.Pool.Query(ctx, query, string(kind), entityID, timezone, StatsDays)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	stats := []models.DailyCount{}
	for rows.Next() {
		var day models.DailyCount
		if err := rows.Scan(&day.Date, &day.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, day)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}
	return stats, nil
}

// GroupBy количество переходов по значениям колонки, NULL считается как "unknown"
func (r *accessLogRepository) GroupBy(ctx context.Context, kind models.EntityKind, entityID, column string) ([]models.Bucket, error) {
	if !groupColumns[column] {
		return nil, fmt.Errorf("unsupported group column %q", column)
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(%s, 'unknown') AS key, COUNT(*) AS cnt
		FROM access_logs
		WHERE entity_kind = $1 AND entity_id = $2
		GROUP BY key
		ORDER BY cnt DESC, key
	`, column)

	rows, err := r.db.Pool.Query(ctx, query, string(kind), entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to group access logs: %w", err)
	}
	defer rows.Close()

	buckets := []models.Bucket{}
	for rows.Next() {
		var b models.Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buckets: %w", err)
	}
	return buckets, nil
}

func (r *accessLogRepository) Recent(ctx context.Context, kind models.EntityKind, entityID string, limit int) ([]models.AccessLog, error) {
	query := `
		SELECT id, entity_kind, entity_id, ip_hash, session_id, is_unique_visitor,
			user_agent, device, is_mobile, browser, browser_version, platform, os_version,
			country, region, city, timezone, latitude, longitude,
			referer, utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			social_network, language, scan_method, is_bot, response_time_ms, accessed_at
		FROM access_logs
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY accessed_at DESC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, string(kind), entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent accesses: %w", err)
	}
	defer rows.Close()

	logs := []models.AccessLog{}
	for rows.Next() {
		var l models.AccessLog
		var entityKind string
		if err := rows.Scan(
			&l.ID, &entityKind, &l.EntityID, &l.IPHash, &l.SessionID, &l.IsUniqueVisitor,
			&l.UserAgent, &l.Device, &l.IsMobile, &l.Browser, &l.BrowserVersion, &l.Platform, &l.OSVersion,
			&l.Country, &l.Region, &l.City, &l.Timezone, &l.Latitude, &l.Longitude,
			&l.Referer, &l.UTMSource, &l.UTMMedium, &l.UTMCampaign, &l.UTMTerm, &l.UTMContent,
			&l.SocialNetwork, &l.Language, &l.ScanMethod, &l.IsBot, &l.ResponseTimeMs, &l.AccessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}
		l.EntityKind = models.EntityKind(entityKind)
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access logs: %w", err)
	}
	return logs, nil
}

func insertArgs(l *models.AccessLog) []any {
	return []any{
		string(l.EntityKind), l.EntityID, l.IPHash, l.SessionID, l.IsUniqueVisitor,
		l.UserAgent, l.Device, l.IsMobile, l.Browser, l.BrowserVersion, l.Platform, l.OSVersion,
		l.Country, l.Region, l.City, l.Timezone, l.Latitude, l.Longitude,
		l.Referer, l.UTMSource, l.UTMMedium, l.UTMCampaign, l.UTMTerm, l.UTMContent,
		l.SocialNetwork, l.Language, l.ScanMethod, l.IsBot, l.ResponseTimeMs, l.AccessedAt,
	}
}
