package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/therapy-session-scheduling/internal/db"
)

const slotColumns = `id, therapist_id, starts_at, ends_at, status, requested_by, held_at, version, created_at, updated_at`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.TherapistID,
		&s.StartsAt,
		&s.EndsAt,
		&s.Status,
		&s.RequestedBy,
		&s.HeldAt,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *PgRepository) Upsert(ctx context.Context, s Slot) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO slots (id, therapist_id, starts_at, ends_at, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'open', 0, now(), now())
		ON CONFLICT (id) DO UPDATE
		    SET ends_at = EXCLUDED.ends_at,
		        updated_at = now()
		    WHERE slots.status = 'open'
		RETURNING `+slotColumns, s.ID, s.TherapistID, s.StartsAt, s.EndsAt)

	upserted, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		// conflict on a held or booked slot: leave it as it is
		return r.Get(ctx, s.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert slot %s: %w", s.ID, err)
	}
	return upserted, nil
}

func (r *PgRepository) Get(ctx context.Context, id string) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListByTherapist(ctx context.Context, therapistID string, from time.Time, statuses []Status) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE therapist_id = $1
		  AND starts_at >= $2
		  AND status = ANY($3)
		ORDER BY starts_at ASC
	`, therapistID, from, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) Transition(ctx context.Context, id string, from []Status, to Status, requestedBy *string) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    requested_by = $3,
		    held_at = CASE WHEN $2 = 'held' THEN now() ELSE NULL END,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING `+slotColumns, id, string(to), requestedBy, statusStrings(from))

	updated, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("transition slot %s: %w", id, err)
	}
	return updated, nil
}

func (r *PgRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND status = 'open'
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *PgRepository) ListHeldBefore(ctx context.Context, cutoff time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = 'held'
		  AND held_at IS NOT NULL
		  AND held_at < $1
		ORDER BY held_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list held slots: %w", err)
	}
	return collectSlots(rows)
}
