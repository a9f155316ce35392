package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hackgods/therapy-session-scheduling/internal/db"
)

type PgDirectory struct {
	db db.DBTX
}

func NewPgDirectory(conn db.DBTX) *PgDirectory {
	return &PgDirectory{db: conn}
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var displayName, email *string

	err := row.Scan(&p.UID, &p.Role, &displayName, &email, &p.TherapistUID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if displayName != nil {
		p.DisplayName = *displayName
	}
	if email != nil {
		p.Email = *email
	}
	return &p, nil
}

func (d *PgDirectory) Get(ctx context.Context, uid string) (*Profile, error) {
	row := d.db.QueryRow(ctx, `
		SELECT uid, role, display_name, email, therapist_uid, created_at, updated_at
		FROM profiles
		WHERE uid = $1
	`, uid)
	return scanProfile(row)
}

func (d *PgDirectory) GetMany(ctx context.Context, uids []string) (map[string]Profile, error) {
	result := make(map[string]Profile, len(uids))
	if len(uids) == 0 {
		return result, nil
	}

	rows, err := d.db.Query(ctx, `
		SELECT uid, role, display_name, email, therapist_uid, created_at, updated_at
		FROM profiles
		WHERE uid = ANY($1)
	`, uids)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		result[p.UID] = *p
	}
	return result, rows.Err()
}

func (d *PgDirectory) LinkTherapist(ctx context.Context, patientUID, therapistUID string) error {
	tag, err := d.db.Exec(ctx, `
		UPDATE profiles
		SET therapist_uid = $2,
		    updated_at = now()
		WHERE uid = $1
		  AND role = 'patient'
	`, patientUID, therapistUID)
	if err != nil {
		return fmt.Errorf("link therapist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
