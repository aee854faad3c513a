package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

// Postgres error codes
const (
	codeForeignKeyViolation = "23503"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Teams ---

const teamColumns = `id, name, description, logo_url, total_points, level, created_at, updated_at`

// ListTeams returns all teams, highest score first
func (r *PostgresRepository) ListTeams(ctx context.Context) ([]models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams ORDER BY total_points DESC, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []models.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, *team)
	}

	return teams, rows.Err()
}

// GetTeam retrieves a team by ID
func (r *PostgresRepository) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	team, err := scanTeam(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return team, nil
}

// CreateTeam inserts a team. ID and timestamps are filled in when empty;
// points and level always start from the column defaults.
func (r *PostgresRepository) CreateTeam(ctx context.Context, team *models.Team) error {
	if team.ID == "" {
		team.ID = uuid.New().String()
	}

	query := `
		INSERT INTO teams (id, name, description, logo_url)
		VALUES ($1, $2, $3, $4)
		RETURNING total_points, level, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		team.ID,
		team.Name,
		nullString(team.Description),
		nullString(team.LogoURL),
	).Scan(&team.TotalPoints, &team.Level, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	return nil
}

// DeleteTeam deletes a team; its score events and badges go with it
func (r *PostgresRepository) DeleteTeam(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("team %s: %w", id, ErrNotFound)
	}

	return nil
}

// --- Score events ---

// CreateScoreEvent appends a score event. The score trigger updates the
// team's total and level in the same statement.
func (r *PostgresRepository) CreateScoreEvent(ctx context.Context, ev *models.ScoreEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	query := `
		INSERT INTO score_events (id, team_id, points, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query, ev.ID, ev.TeamID, ev.Points, ev.Reason).Scan(&ev.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("team %s: %w", ev.TeamID, ErrNotFound)
		}
		return fmt.Errorf("failed to create score event: %w", err)
	}

	return nil
}

// ListScoreEvents returns a team's score history, newest first
func (r *PostgresRepository) ListScoreEvents(ctx context.Context, teamID string) ([]models.ScoreEvent, error) {
	query := `
		SELECT id, team_id, points, reason, created_at
		FROM score_events
		WHERE team_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list score events: %w", err)
	}
	defer rows.Close()

	var events []models.ScoreEvent
	for rows.Next() {
		var ev models.ScoreEvent
		if err := rows.Scan(&ev.ID, &ev.TeamID, &ev.Points, &ev.Reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score event: %w", err)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// --- Badges ---

const badgeColumns = `id, name, description, icon, criteria_type, criteria_value, created_at`

// ListBadges returns every badge definition
func (r *PostgresRepository) ListBadges(ctx context.Context) ([]models.Badge, error) {
	return r.queryBadges(ctx, `SELECT `+badgeColumns+` FROM badges ORDER BY id`)
}

// ListBadgesByIDs returns the badges whose id is in ids
func (r *PostgresRepository) ListBadgesByIDs(ctx context.Context, ids []string) ([]models.Badge, error) {
	if len(ids) == 0 {
		return []models.Badge{}, nil
	}
	return r.queryBadges(ctx, `SELECT `+badgeColumns+` FROM badges WHERE id = ANY($1) ORDER BY id`, ids)
}

func (r *PostgresRepository) queryBadges(ctx context.Context, query string, args ...any) ([]models.Badge, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	defer rows.Close()

	var badges []models.Badge
	for rows.Next() {
		var b models.Badge
		var criteria string
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &criteria, &b.CriteriaValue, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		b.CriteriaType = models.BadgeCriteriaType(criteria)
		badges = append(badges, b)
	}

	return badges, rows.Err()
}

// UpsertBadge inserts a badge definition or updates the existing one
func (r *PostgresRepository) UpsertBadge(ctx context.Context, badge *models.Badge) error {
	query := `
		INSERT INTO badges (id, name, description, icon, criteria_type, criteria_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			criteria_type = EXCLUDED.criteria_type,
			criteria_value = EXCLUDED.criteria_value
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		badge.ID,
		badge.Name,
		badge.Description,
		badge.Icon,
		string(badge.CriteriaType),
		badge.CriteriaValue,
	).Scan(&badge.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert badge %s: %w", badge.ID, err)
	}

	return nil
}

// ListTeamBadges returns every badge assignment in award order
func (r *PostgresRepository) ListTeamBadges(ctx context.Context) ([]models.TeamBadge, error) {
	return r.queryTeamBadges(ctx, `
		SELECT id, team_id, badge_id, awarded_at
		FROM team_badges
		ORDER BY awarded_at, id
	`)
}

// ListTeamBadgesByTeam returns the badge assignments of one team in award order
func (r *PostgresRepository) ListTeamBadgesByTeam(ctx context.Context, teamID string) ([]models.TeamBadge, error) {
	return r.queryTeamBadges(ctx, `
		SELECT id, team_id, badge_id, awarded_at
		FROM team_badges
		WHERE team_id = $1
		ORDER BY awarded_at, id
	`, teamID)
}

func (r *PostgresRepository) queryTeamBadges(ctx context.Context, query string, args ...any) ([]models.TeamBadge, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list team badges: %w", err)
	}
	defer rows.Close()

	var links []models.TeamBadge
	for rows.Next() {
		var tb models.TeamBadge
		if err := rows.Scan(&tb.ID, &tb.TeamID, &tb.BadgeID, &tb.AwardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team badge: %w", err)
		}
		links = append(links, tb)
	}

	return links, rows.Err()
}

// AwardBadge links a badge to a team. A team holds each badge at most once.
func (r *PostgresRepository) AwardBadge(ctx context.Context, tb *models.TeamBadge) error {
	if tb.ID == "" {
		tb.ID = uuid.New().String()
	}

	query := `
		INSERT INTO team_badges (id, team_id, badge_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (team_id, badge_id) DO NOTHING
		RETURNING awarded_at
	`

	err := r.pool.QueryRow(ctx, query, tb.ID, tb.TeamID, tb.BadgeID).Scan(&tb.AwardedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadyAwarded
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("team %s or badge %s: %w", tb.TeamID, tb.BadgeID, ErrNotFound)
		}
		return fmt.Errorf("failed to award badge: %w", err)
	}

	return nil
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&client.Permissions,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	query := `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`

	_, err := r.pool.Exec(ctx, query, apiKey)
	if err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}

	return nil
}

// Helper functions for nullable values

func scanTeam(row pgx.Row) (*models.Team, error) {
	var team models.Team
	var description, logoURL sql.NullString

	err := row.Scan(
		&team.ID,
		&team.Name,
		&description,
		&logoURL,
		&team.TotalPoints,
		&team.Level,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		team.Description = &description.String
	}
	if logoURL.Valid {
		team.LogoURL = &logoURL.String
	}

	return &team, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}
