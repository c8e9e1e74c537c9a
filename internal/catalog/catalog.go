// Package catalog persists administrator-managed state (custom patterns,
// compliance profiles) and a session audit trail in PostgreSQL. Audit rows
// hold identifiers, counts, and statuses only, never matched text or
// original values.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/engine"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/profile"
)

// Config contains database configuration. An empty DatabaseURL disables the
// catalog entirely; the engine then runs on built-ins.
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Catalog wraps the database handle.
type Catalog struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS custom_patterns (
	id              TEXT PRIMARY KEY,
	category        TEXT NOT NULL,
	regex           TEXT NOT NULL,
	risk_level      TEXT NOT NULL,
	compliance_tags TEXT NOT NULL DEFAULT '',
	enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	base_confidence DOUBLE PRECISION NOT NULL DEFAULT 0.7,
	priority        INTEGER NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS compliance_profiles (
	name       TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS session_audit (
	session_id  TEXT PRIMARY KEY,
	profile_id  TEXT NOT NULL,
	status      TEXT NOT NULL,
	mappings    INTEGER NOT NULL DEFAULT 0,
	findings    JSONB,
	restored    INTEGER NOT NULL DEFAULT 0,
	unresolved  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Open connects to the database and ensures the schema exists.
func Open(cfg Config, logger *zap.Logger) (*Catalog, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Catalog initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
	)
	return &Catalog{db: db, logger: logger}, nil
}

type patternRow struct {
	ID             string  `db:"id"`
	Category       string  `db:"category"`
	Regex          string  `db:"regex"`
	RiskLevel      string  `db:"risk_level"`
	ComplianceTags string  `db:"compliance_tags"`
	Enabled        bool    `db:"enabled"`
	BaseConfidence float64 `db:"base_confidence"`
	Priority       int     `db:"priority"`
}

// LoadPatterns returns all persisted custom patterns.
func (c *Catalog) LoadPatterns(ctx context.Context) ([]pattern.Pattern, error) {
	var rows []patternRow
	if err := c.db.SelectContext(ctx, &rows, `SELECT id, category, regex, risk_level, compliance_tags, enabled, base_confidence, priority FROM custom_patterns ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to load custom patterns: %w", err)
	}
	out := make([]pattern.Pattern, 0, len(rows))
	for _, r := range rows {
		var tags []string
		if r.ComplianceTags != "" {
			tags = strings.Split(r.ComplianceTags, ",")
		}
		out = append(out, pattern.Pattern{
			ID:             r.ID,
			Category:       pattern.Category(r.Category),
			Regex:          r.Regex,
			RiskLevel:      pattern.RiskLevel(r.RiskLevel),
			ComplianceTags: tags,
			Enabled:        r.Enabled,
			Custom:         true,
			BaseConfidence: r.BaseConfidence,
			Priority:       r.Priority,
		})
	}
	return out, nil
}

// SavePattern upserts a custom pattern.
func (c *Catalog) SavePattern(ctx context.Context, p pattern.Pattern) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO custom_patterns (id, category, regex, risk_level, compliance_tags, enabled, base_confidence, priority, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (id) DO UPDATE SET
			category = EXCLUDED.category,
			regex = EXCLUDED.regex,
			risk_level = EXCLUDED.risk_level,
			compliance_tags = EXCLUDED.compliance_tags,
			enabled = EXCLUDED.enabled,
			base_confidence = EXCLUDED.base_confidence,
			priority = EXCLUDED.priority,
			updated_at = now()`,
		p.ID, string(p.Category), p.Regex, string(p.RiskLevel),
		strings.Join(p.ComplianceTags, ","), p.Enabled, p.BaseConfidence, p.Priority,
	)
	if err != nil {
		return fmt.Errorf("failed to save pattern %q: %w", p.ID, err)
	}
	return nil
}

// DeletePattern removes a custom pattern.
func (c *Catalog) DeletePattern(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM custom_patterns WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete pattern %q: %w", id, err)
	}
	return nil
}

// LoadProfiles returns all persisted profiles.
func (c *Catalog) LoadProfiles(ctx context.Context) ([]*profile.Profile, error) {
	var rows []struct {
		Name     string `db:"name"`
		Document []byte `db:"document"`
	}
	if err := c.db.SelectContext(ctx, &rows, `SELECT name, document FROM compliance_profiles ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	out := make([]*profile.Profile, 0, len(rows))
	for _, r := range rows {
		var p profile.Profile
		if err := json.Unmarshal(r.Document, &p); err != nil {
			return nil, fmt.Errorf("corrupt profile document %q: %w", r.Name, err)
		}
		out = append(out, &p)
	}
	return out, nil
}

// SaveProfile upserts a profile document.
func (c *Catalog) SaveProfile(ctx context.Context, p *profile.Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile %q: %w", p.Name, err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO compliance_profiles (name, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		p.Name, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile %q: %w", p.Name, err)
	}
	return nil
}

// RecordScramble writes the audit row for a new session.
func (c *Catalog) RecordScramble(ctx context.Context, s *engine.Session, findings []detect.Finding) error {
	doc, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO session_audit (session_id, profile_id, status, mappings, findings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (session_id) DO NOTHING`,
		s.ID, s.ProfileID, string(s.Status), s.Mappings, doc, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record scramble: %w", err)
	}
	return nil
}

// RecordRestore updates the audit row after a restore attempt.
func (c *Catalog) RecordRestore(ctx context.Context, s *engine.Session, restored, unresolved int) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE session_audit
		SET status = $2, restored = $3, unresolved = $4, updated_at = now()
		WHERE session_id = $1`,
		s.ID, string(s.Status), restored, unresolved,
	)
	if err != nil {
		return fmt.Errorf("failed to record restore: %w", err)
	}
	return nil
}

// SessionAudit is one audit row as returned to the admin API.
type SessionAudit struct {
	SessionID  string    `db:"session_id" json:"session_id"`
	ProfileID  string    `db:"profile_id" json:"profile_id"`
	Status     string    `db:"status" json:"status"`
	Mappings   int       `db:"mappings" json:"mappings"`
	Restored   int       `db:"restored" json:"restored"`
	Unresolved int       `db:"unresolved" json:"unresolved"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// RecentSessions returns the newest audit rows, capped by limit.
func (c *Catalog) RecentSessions(ctx context.Context, limit int) ([]SessionAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []SessionAudit
	err := c.db.SelectContext(ctx, &rows, `
		SELECT session_id, profile_id, status, mappings, restored, unresolved, created_at, updated_at
		FROM session_audit ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load session audit: %w", err)
	}
	return rows, nil
}

// Close closes the database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// maskDatabaseURL hides credentials in a connection URL before logging.
func maskDatabaseURL(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		rest := url[i+3:]
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			return url[:i+3] + "***" + rest[at:]
		}
	}
	return url
}
