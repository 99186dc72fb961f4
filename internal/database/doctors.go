package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Doctor is a clinician known by the subject of their identity token.
type Doctor struct {
	ID        uuid.UUID
	Subject   string
	Email     string
	Name      string
	CreatedAt time.Time
}

const doctorColumns = `id, subject, email, name, created_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Subject, &d.Email, &d.Name, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDoctorBySubject retrieves a doctor by token subject.
func (db *DB) GetDoctorBySubject(ctx context.Context, subject string) (*Doctor, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+doctorColumns+` FROM doctors WHERE subject = $1`,
		subject,
	)
	return scanDoctor(row)
}

// UpsertDoctor returns the doctor for subject, creating it on first sight and
// refreshing email and name when the token carries them.
func (db *DB) UpsertDoctor(ctx context.Context, subject, email, name string) (*Doctor, error) {
	row := db.pool.QueryRow(ctx,
		`INSERT INTO doctors (subject, email, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (subject) DO UPDATE SET
		   email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE doctors.email END,
		   name  = CASE WHEN EXCLUDED.name  <> '' THEN EXCLUDED.name  ELSE doctors.name  END
		 RETURNING `+doctorColumns,
		subject, email, name,
	)
	return scanDoctor(row)
}

// DeleteDoctor removes a doctor and, by cascade, their analyses.
func (db *DB) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	return err
}
