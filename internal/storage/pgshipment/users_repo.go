package pgshipment

import (
	"context"
	"time"

	"github.com/BearBump/Dekks/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var ErrDuplicateEmail = errors.New("email already registered")

func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	p := u.Preferences
	err := s.db.QueryRow(ctx, `
INSERT INTO users (
  email, phone, first_name, last_name,
  notify_on_arrival, notify_on_departure, notify_on_delay, notify_via_email, notify_via_sms,
  created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id
`,
		u.Email, u.Phone, u.FirstName, u.LastName,
		p.NotifyOnArrival, p.NotifyOnDeparture, p.NotifyOnDelay, p.NotifyViaEmail, p.NotifyViaSMS,
		u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateEmail
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
SELECT id, email, phone, first_name, last_name,
  notify_on_arrival, notify_on_departure, notify_on_delay, notify_via_email, notify_via_sms,
  created_at
FROM users
WHERE id = $1
`, id).Scan(
		&u.ID, &u.Email, &u.Phone, &u.FirstName, &u.LastName,
		&u.Preferences.NotifyOnArrival, &u.Preferences.NotifyOnDeparture, &u.Preferences.NotifyOnDelay,
		&u.Preferences.NotifyViaEmail, &u.Preferences.NotifyViaSMS,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}
	return &u, nil
}
