package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/message"
)

const messageColumns = `id, from_eve_id, to_eve_id, content, type, priority, status, metadata, created_at, delivered_at, read_at, processed_at`

// MessageRepository implements message.Repository over the eve_messages table.
type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Create(ctx context.Context, m *message.Message) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO eve_messages (`+messageColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, m.ID, m.FromEVEID, m.ToEVEID, m.Content, m.Type, m.Priority, m.Status, metadata, m.CreatedAt, m.DeliveredAt, m.ReadAt, m.ProcessedAt)
	return err
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*message.Message, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM eve_messages WHERE id=$1`, messageID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("message", messageID.String())
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) ListForWorker(ctx context.Context, eveID uuid.UUID, opts message.ListOptions) ([]*message.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM eve_messages WHERE (to_eve_id=$1 OR from_eve_id=$1)`
	args := []interface{}{eveID}
	if opts.Status != nil {
		args = append(args, *opts.Status)
		query += " AND status=$" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepository) Update(ctx context.Context, m *message.Message) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal message metadata: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE eve_messages SET status=$1, metadata=$2, delivered_at=$3, read_at=$4, processed_at=$5
		WHERE id=$6
	`, m.Status, metadata, m.DeliveredAt, m.ReadAt, m.ProcessedAt, m.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("message", m.ID.String())
	}
	return nil
}

func scanMessage(row pgx.Row) (*message.Message, error) {
	var m message.Message
	var metadata []byte
	if err := row.Scan(&m.ID, &m.FromEVEID, &m.ToEVEID, &m.Content, &m.Type, &m.Priority, &m.Status, &metadata, &m.CreatedAt, &m.DeliveredAt, &m.ReadAt, &m.ProcessedAt); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message metadata: %w", err)
		}
	}
	return &m, nil
}
