package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/maastricht-university/edmo-engagement/engagement"
)

const schema = `
CREATE TABLE IF NOT EXISTS emotion_logs (
	id                 UUID PRIMARY KEY,
	subject_id         TEXT NOT NULL,
	course_id          TEXT,
	ts                 TIMESTAMPTZ NOT NULL,
	focus_score        DOUBLE PRECISION NOT NULL,
	frustration_score  DOUBLE PRECISION NOT NULL,
	raw_observations   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS emotion_logs_subject_ts ON emotion_logs (subject_id, ts);

CREATE TABLE IF NOT EXISTS enrollment_engagement (
	subject_id          TEXT NOT NULL,
	course_id           TEXT NOT NULL,
	latest_focus_score  DOUBLE PRECISION NOT NULL,
	frustration_level   DOUBLE PRECISION NOT NULL,
	last_updated        TIMESTAMPTZ NOT NULL,
	is_monitoring       BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (subject_id, course_id)
);`

// Postgres stores ticks in emotion_logs and the live projection in
// enrollment_engagement.
type Postgres struct {
	db *sqlx.DB
}

// OpenPostgres connects with lib/pq and makes sure the tables exist.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgres(db *sqlx.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

type tickRow struct {
	ID               string         `db:"id"`
	SubjectID        string         `db:"subject_id"`
	CourseID         sql.NullString `db:"course_id"`
	Timestamp        time.Time      `db:"ts"`
	FocusScore       float64        `db:"focus_score"`
	FrustrationScore float64        `db:"frustration_score"`
	RawObservations  string         `db:"raw_observations"`
}

func (p *Postgres) AppendTick(ctx context.Context, t engagement.Tick) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	raw := t.RawObservations
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	row := tickRow{
		ID:               t.ID,
		SubjectID:        t.SubjectID,
		CourseID:         sql.NullString{String: t.CourseID, Valid: t.CourseID != ""},
		Timestamp:        t.Timestamp,
		FocusScore:       t.FocusScore,
		FrustrationScore: t.FrustrationScore,
		RawObservations:  string(raw),
	}
	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO emotion_logs (id, subject_id, course_id, ts, focus_score, frustration_score, raw_observations)
		VALUES (:id, :subject_id, :course_id, :ts, :focus_score, :frustration_score, :raw_observations)`, row)
	if err != nil {
		return "", fmt.Errorf("insert tick: %w", err)
	}
	return t.ID, nil
}

func (p *Postgres) UpsertLiveState(ctx context.Context, s engagement.LiveState) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO enrollment_engagement
			(subject_id, course_id, latest_focus_score, frustration_level, last_updated, is_monitoring)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (subject_id, course_id) DO UPDATE SET
			latest_focus_score = EXCLUDED.latest_focus_score,
			frustration_level  = EXCLUDED.frustration_level,
			last_updated       = EXCLUDED.last_updated,
			is_monitoring      = EXCLUDED.is_monitoring`,
		s.SubjectID, s.CourseID, s.LatestFocusScore, s.FrustrationLevel, s.LastUpdated, s.IsMonitoring)
	if err != nil {
		return fmt.Errorf("upsert live state: %w", err)
	}
	return nil
}

func (p *Postgres) EndMonitoring(ctx context.Context, subjectID, courseID string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE enrollment_engagement SET is_monitoring = FALSE WHERE subject_id = $1 AND course_id = $2`,
		subjectID, courseID)
	if err != nil {
		return fmt.Errorf("end monitoring: %w", err)
	}
	return nil
}

// Ticks returns up to limit of the subject's most recent ticks, oldest first.
// limit <= 0 returns every tick.
func (p *Postgres) Ticks(ctx context.Context, subjectID string, limit int) ([]engagement.Tick, error) {
	var lim any // NULL means LIMIT ALL
	if limit > 0 {
		lim = limit
	}
	var rows []tickRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT * FROM (
			SELECT id, subject_id, course_id, ts, focus_score, frustration_score, raw_observations
			FROM emotion_logs WHERE subject_id = $1 ORDER BY ts DESC LIMIT $2
		) recent ORDER BY ts ASC`, subjectID, lim)
	if err != nil {
		return nil, fmt.Errorf("select ticks: %w", err)
	}
	out := make([]engagement.Tick, 0, len(rows))
	for _, r := range rows {
		out = append(out, engagement.Tick{
			ID:               r.ID,
			SubjectID:        r.SubjectID,
			CourseID:         r.CourseID.String,
			Timestamp:        r.Timestamp,
			FocusScore:       r.FocusScore,
			FrustrationScore: r.FrustrationScore,
			RawObservations:  json.RawMessage(r.RawObservations),
		})
	}
	return out, nil
}

// LiveState returns the projection for a subject/course pair.
func (p *Postgres) LiveState(ctx context.Context, subjectID, courseID string) (engagement.LiveState, bool, error) {
	var row struct {
		SubjectID        string    `db:"subject_id"`
		CourseID         string    `db:"course_id"`
		LatestFocusScore float64   `db:"latest_focus_score"`
		FrustrationLevel float64   `db:"frustration_level"`
		LastUpdated      time.Time `db:"last_updated"`
		IsMonitoring     bool      `db:"is_monitoring"`
	}
	err := p.db.GetContext(ctx, &row, `
		SELECT subject_id, course_id, latest_focus_score, frustration_level, last_updated, is_monitoring
		FROM enrollment_engagement WHERE subject_id = $1 AND course_id = $2`, subjectID, courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return engagement.LiveState{}, false, nil
	}
	if err != nil {
		return engagement.LiveState{}, false, fmt.Errorf("select live state: %w", err)
	}
	return engagement.LiveState(row), true, nil
}
