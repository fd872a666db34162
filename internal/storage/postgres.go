package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	config "github.com/dexlens/indexer/configs"
	"github.com/dexlens/indexer/internal/common"
)

// PostgresConnector backs the block registry. Status transitions go through
// a conditional UPDATE so concurrent invocations cannot both move the same
// block, and a PROCESSED row can never be moved again.
type PostgresConnector struct {
	db  *sql.DB
	cfg *config.PostgresConfig
}

func NewPostgresConnector(cfg *config.PostgresConfig) (*PostgresConnector, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}
	connStr += fmt.Sprintf(" sslmode=%s", sslMode)

	if cfg.ConnectTimeout > 0 {
		connStr += fmt.Sprintf(" connect_timeout=%d", cfg.ConnectTimeout)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresConnector{db: db, cfg: cfg}, nil
}

func (p *PostgresConnector) GetBlockRecord(blockNumber uint64) (*common.BlockRecord, error) {
	query := `SELECT block_number, block_hash, parent_hash, timestamp, status,
		COALESCE(storage_type, ''), COALESCE(path, ''), COALESCE(error, ''), event_count, updated_at
		FROM block_records WHERE block_number = $1`

	record := common.BlockRecord{}
	err := p.db.QueryRow(query, blockNumber).Scan(
		&record.BlockNumber, &record.BlockHash, &record.ParentHash,
		&record.Timestamp, &record.Status, &record.StorageType,
		&record.Path, &record.Error, &record.EventCount, &record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	return &record, nil
}

func (p *PostgresConnector) InsertBlockRecord(record *common.BlockRecord) error {
	query := `INSERT INTO block_records
		(block_number, block_hash, parent_hash, timestamp, status, event_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (block_number) DO NOTHING`

	_, err := p.db.Exec(query, record.BlockNumber, record.BlockHash,
		record.ParentHash, record.Timestamp, record.Status, record.EventCount, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	return nil
}

func (p *PostgresConnector) UpdateBlockRecord(blockNumber uint64, allowedFrom []common.ProcessingStatus, update BlockStatusUpdate) (bool, error) {
	placeholders := make([]string, len(allowedFrom))
	args := []interface{}{update.Status, update.Error, time.Now()}
	argIdx := len(args)
	for i, status := range allowedFrom {
		argIdx++
		placeholders[i] = fmt.Sprintf("$%d", argIdx)
		args = append(args, status)
	}

	query := `UPDATE block_records
		SET status = $1, error = $2, updated_at = $3`
	if update.StorageType != "" {
		argIdx++
		query += fmt.Sprintf(", storage_type = $%d", argIdx)
		args = append(args, update.StorageType)
	}
	if update.Path != "" {
		argIdx++
		query += fmt.Sprintf(", path = $%d", argIdx)
		args = append(args, update.Path)
	}
	if update.EventCount != nil {
		argIdx++
		query += fmt.Sprintf(", event_count = $%d", argIdx)
		args = append(args, *update.EventCount)
	}
	argIdx++
	query += fmt.Sprintf(" WHERE block_number = $%d AND status IN (%s)",
		argIdx, strings.Join(placeholders, ", "))
	args = append(args, blockNumber)

	result, err := p.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	return affected > 0, nil
}

func (p *PostgresConnector) GetBlockNumbersInRange(start, end uint64) ([]uint64, error) {
	query := `SELECT block_number FROM block_records
		WHERE block_number >= $1 AND block_number <= $2 ORDER BY block_number`

	rows, err := p.db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	defer rows.Close()

	numbers := []uint64{}
	for rows.Next() {
		var n uint64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	return numbers, nil
}

func (p *PostgresConnector) GetBlockRecordsByStatus(status common.ProcessingStatus, limit int) ([]common.BlockRecord, error) {
	query := `SELECT block_number, block_hash, parent_hash, timestamp, status,
		COALESCE(storage_type, ''), COALESCE(path, ''), COALESCE(error, ''), event_count, updated_at
		FROM block_records WHERE status = $1 ORDER BY block_number LIMIT $2`

	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.Query(query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	defer rows.Close()

	records := []common.BlockRecord{}
	for rows.Next() {
		record := common.BlockRecord{}
		if err := rows.Scan(&record.BlockNumber, &record.BlockHash, &record.ParentHash,
			&record.Timestamp, &record.Status, &record.StorageType,
			&record.Path, &record.Error, &record.EventCount, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrRegistryUnavailable, err)
	}
	return records, nil
}

func (p *PostgresConnector) Close() error {
	return p.db.Close()
}
