package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
)

// HistorySchema returns the DDL for the price history table. Rows expire
// through the MergeTree TTL.
func HistorySchema(database, table string, ttlDays int) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	ts        DateTime64(3, 'UTC'),
	code      LowCardinality(String),
	raw_buy   Float64,
	raw_sell  Float64,
	calc_buy  Float64,
	calc_sell Float64,
	buy_dir   LowCardinality(String),
	sell_dir  LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMMDD(ts)
ORDER BY (code, ts)
TTL toDateTime(ts) + INTERVAL %d DAY`, database, table, ttlDays),
	}
}

// ClickHouseHistory implements HistoryStore on ClickHouse.
type ClickHouseHistory struct {
	db    *sql.DB
	table string
}

var _ drepo.HistoryStore = (*ClickHouseHistory)(nil)

func NewClickHouseHistory(db *sql.DB, table string) *ClickHouseHistory {
	return &ClickHouseHistory{db: db, table: table}
}

func (s *ClickHouseHistory) Init(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const historyChunk = 1000

func (s *ClickHouseHistory) Append(ctx context.Context, records []models.HistoryRecord) error {
	for start := 0; start < len(records); start += historyChunk {
		end := min(start+historyChunk, len(records))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, r := range records[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.Timestamp.UTC(),
				r.Code,
				r.RawBuy,
				r.RawSell,
				r.CalculatedBuy,
				r.CalculatedSell,
				r.Direction.BuyDir,
				r.Direction.SellDir,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, code, raw_buy, raw_sell, calc_buy, calc_sell, buy_dir, sell_dir) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseHistory) Query(ctx context.Context, code string, from, to time.Time, limit int) ([]models.HistoryRecord, error) {
	q := fmt.Sprintf(`SELECT ts, code, raw_buy, raw_sell, calc_buy, calc_sell, buy_dir, sell_dir
FROM %s WHERE code = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, code, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var r models.HistoryRecord
		if err := rows.Scan(&r.Timestamp, &r.Code, &r.RawBuy, &r.RawSell,
			&r.CalculatedBuy, &r.CalculatedSell, &r.Direction.BuyDir, &r.Direction.SellDir); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ClickHouseHistory) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseHistory) Close() error { return nil }
