package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var _ Sink = (*Postgres)(nil)

// Postgres stores activity rows in the activity_feed table.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.initSchema(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	flog.Info("Activity feed connected to PostgreSQL")
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS activity_feed (
		id BIGSERIAL PRIMARY KEY,
		block_height BIGINT NOT NULL,
		tx_id VARCHAR(66) NOT NULL DEFAULT '',
		event_type VARCHAR(64) NOT NULL,
		actor VARCHAR(42) NOT NULL DEFAULT '',
		data JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_activity_feed_actor ON activity_feed(actor, id DESC);
	CREATE INDEX IF NOT EXISTS idx_activity_feed_event_type ON activity_feed(event_type, id DESC);
	CREATE INDEX IF NOT EXISTS idx_activity_feed_block_height ON activity_feed(block_height);
	`
	_, err := p.db.ExecContext(ctx, query)
	return err
}

// Write inserts rows in one transaction.
func (p *Postgres) Write(ctx context.Context, rows []Row) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activity_feed (block_height, tx_id, event_type, actor, data)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.BlockHeight, r.TxID, r.EventType, r.Actor, string(r.Data)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", r.EventType, err)
		}
	}
	return tx.Commit()
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}
