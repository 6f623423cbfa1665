package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/maverika/maverika/internal/apperr"
	"github.com/maverika/maverika/internal/domain/eve"
)

const eveColumns = `id, company_id, name, role, type, status, capabilities, performance, models, created_at, updated_at`

// EVERepository implements eve.Repository.
type EVERepository struct {
	pool *pgxpool.Pool
}

func NewEVERepository(pool *pgxpool.Pool) *EVERepository {
	return &EVERepository{pool: pool}
}

func (r *EVERepository) Create(ctx context.Context, e *eve.EVE) error {
	performance, models, err := marshalEVE(e)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO eves (`+eveColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.CompanyID, e.Name, e.Role, e.Type, e.Status, capabilities(e), performance, models, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *EVERepository) GetByID(ctx context.Context, eveID uuid.UUID) (*eve.EVE, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eveColumns+` FROM eves WHERE id=$1`, eveID)
	e, err := scanEVE(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("eve", eveID.String())
		}
		return nil, err
	}
	return e, nil
}

func (r *EVERepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]*eve.EVE, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eveColumns+` FROM eves WHERE company_id=$1 ORDER BY created_at ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*eve.EVE
	for rows.Next() {
		e, err := scanEVE(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EVERepository) Update(ctx context.Context, e *eve.EVE) error {
	performance, models, err := marshalEVE(e)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE eves SET name=$1, role=$2, type=$3, status=$4, capabilities=$5, performance=$6, models=$7, updated_at=$8
		WHERE id=$9
	`, e.Name, e.Role, e.Type, e.Status, capabilities(e), performance, models, e.UpdatedAt, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("eve", e.ID.String())
	}
	return nil
}

func capabilities(e *eve.EVE) []string {
	if e.Capabilities == nil {
		return []string{}
	}
	return e.Capabilities
}

func marshalEVE(e *eve.EVE) ([]byte, []byte, error) {
	performance, err := json.Marshal(e.Performance)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal eve performance: %w", err)
	}
	models := e.Models
	if models == nil {
		models = []eve.Model{}
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal eve models: %w", err)
	}
	return performance, modelsJSON, nil
}

func scanEVE(row pgx.Row) (*eve.EVE, error) {
	var e eve.EVE
	var performance []byte
	var models []byte
	if err := row.Scan(&e.ID, &e.CompanyID, &e.Name, &e.Role, &e.Type, &e.Status, &e.Capabilities, &performance, &models, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(performance) > 0 {
		if err := json.Unmarshal(performance, &e.Performance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal eve performance: %w", err)
		}
	}
	if len(models) > 0 {
		if err := json.Unmarshal(models, &e.Models); err != nil {
			return nil, fmt.Errorf("failed to unmarshal eve models: %w", err)
		}
	}
	return &e, nil
}
