package moment

import (
	"context"
	"database/sql"
)

// Repository persists moments and answers follower lookups from Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveMoment(ctx context.Context, m *Moment) error {
	query := `INSERT INTO user_moments (user_id, type, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	return r.db.QueryRowContext(ctx, query, m.UserID, m.Type, m.Content, m.CreateTime).Scan(&m.ID)
}

// GetFollowers returns the ids of users following the given user.
func (r *Repository) GetFollowers(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT user_id FROM user_followings WHERE following_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		followers = append(followers, id)
	}
	return followers, rows.Err()
}
