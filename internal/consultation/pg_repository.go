package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/therapy-session-scheduling/internal/db"
)

const consultationColumns = `id, appointment_id, therapist_id, patient_id, starts_at, ends_at, session_status,
	meeting, summary_notes, resources, follow_up, completed_at, created_by, updated_by, created_at, updated_at`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var meeting, resources, followUp []byte
	var createdBy, updatedBy *string

	err := row.Scan(
		&c.ID,
		&c.AppointmentID,
		&c.TherapistID,
		&c.PatientID,
		&c.StartsAt,
		&c.EndsAt,
		&c.SessionStatus,
		&meeting,
		&c.SummaryNotes,
		&resources,
		&followUp,
		&c.CompletedAt,
		&createdBy,
		&updatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	for _, doc := range []struct {
		raw  []byte
		into any
	}{
		{meeting, &c.Meeting},
		{resources, &c.Resources},
		{followUp, &c.FollowUp},
	} {
		if len(doc.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(doc.raw, doc.into); err != nil {
			return nil, fmt.Errorf("decode consultation %s: %w", c.ID, err)
		}
	}
	if createdBy != nil {
		c.CreatedBy = *createdBy
	}
	if updatedBy != nil {
		c.UpdatedBy = *updatedBy
	}
	return &c, nil
}

func collectConsultations(rows pgx.Rows) ([]Consultation, error) {
	defer rows.Close()

	var result []Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type encodedDocs struct {
	meeting, resources, followUp []byte
}

func encodeDocs(c Consultation) (encodedDocs, error) {
	var out encodedDocs
	var err error
	if out.meeting, err = json.Marshal(c.Meeting); err != nil {
		return out, fmt.Errorf("encode meeting: %w", err)
	}
	if out.resources, err = json.Marshal(c.Resources); err != nil {
		return out, fmt.Errorf("encode resources: %w", err)
	}
	if out.followUp, err = json.Marshal(c.FollowUp); err != nil {
		return out, fmt.Errorf("encode follow up: %w", err)
	}
	return out, nil
}

func (r *PgRepository) Create(ctx context.Context, c Consultation) (*Consultation, error) {
	docs, err := encodeDocs(c)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO consultations (id, appointment_id, therapist_id, patient_id, starts_at, ends_at,
			session_status, meeting, summary_notes, resources, follow_up, completed_at,
			created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+consultationColumns,
		c.ID, c.AppointmentID, c.TherapistID, c.PatientID, c.StartsAt, c.EndsAt,
		c.SessionStatus, docs.meeting, c.SummaryNotes, docs.resources, docs.followUp, c.CompletedAt,
		c.CreatedBy, c.UpdatedBy,
	)
	created, err := scanConsultation(row)
	if err != nil {
		return nil, fmt.Errorf("insert consultation: %w", err)
	}
	return created, nil
}

func (r *PgRepository) Update(ctx context.Context, id uuid.UUID, c Consultation) (*Consultation, error) {
	docs, err := encodeDocs(c)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, `
		UPDATE consultations
		SET starts_at = $2,
		    ends_at = $3,
		    session_status = $4,
		    meeting = $5,
		    summary_notes = $6,
		    resources = $7,
		    follow_up = $8,
		    completed_at = $9,
		    updated_by = $10,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+consultationColumns,
		id, c.StartsAt, c.EndsAt, c.SessionStatus, docs.meeting, c.SummaryNotes,
		docs.resources, docs.followUp, c.CompletedAt, c.UpdatedBy,
	)
	updated, err := scanConsultation(row)
	if err != nil {
		if errors.Is(err, ErrConsultationNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update consultation %s: %w", id, err)
	}
	return updated, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID string) ([]Consultation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE patient_id = $1
		ORDER BY starts_at ASC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list consultations by patient: %w", err)
	}
	return collectConsultations(rows)
}

func (r *PgRepository) ListByTherapist(ctx context.Context, therapistID string) ([]Consultation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+consultationColumns+`
		FROM consultations
		WHERE therapist_id = $1
		ORDER BY starts_at ASC
	`, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list consultations by therapist: %w", err)
	}
	return collectConsultations(rows)
}
