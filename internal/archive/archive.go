package archive

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/cita-scheduler/internal/state"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS booked_appointments (
	id BIGSERIAL PRIMARY KEY,
	party_id BIGINT NOT NULL,
	schedule_id BIGINT NOT NULL,
	time_label TEXT NOT NULL,
	appointment_date TEXT NOT NULL,
	booked_at TIMESTAMPTZ NOT NULL,
	status_code INT NOT NULL,
	confirmation TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_booked_appointments_booked_at ON booked_appointments(booked_at);
`

// Repo is the optional Postgres archive of successful bookings. The run
// state itself is memory-only; this is an out-of-band history that survives
// restarts for the operator's benefit.
type Repo struct{ pool *pgxpool.Pool }

func Open(ctx context.Context, databaseURL string) (*Repo, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) Insert(ctx context.Context, b state.BookedAppointment) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO booked_appointments(party_id, schedule_id, time_label, appointment_date, booked_at, status_code, confirmation)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		b.PartyID, b.ScheduleID, b.TimeLabel, b.Date, b.BookedAt, b.StatusCode, b.Confirmation)
	return err
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]state.BookedAppointment, error) {
	rows, err := r.pool.Query(ctx, `
SELECT party_id, schedule_id, time_label, appointment_date, booked_at, status_code, confirmation
FROM booked_appointments
ORDER BY booked_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []state.BookedAppointment
	for rows.Next() {
		var b state.BookedAppointment
		if err := rows.Scan(&b.PartyID, &b.ScheduleID, &b.TimeLabel, &b.Date, &b.BookedAt, &b.StatusCode, &b.Confirmation); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
