package danmu

import (
	"context"
	"database/sql"
	"time"
)

// Repository is the Postgres-backed DurableStore.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveDanmu(ctx context.Context, d *Danmu) error {
	query := `INSERT INTO danmus (video_id, user_id, content, created_at) VALUES ($1, $2, $3, $4) RETURNING id`
	return r.db.QueryRowContext(ctx, query, d.VideoID, d.UserID, d.Content, d.CreateTime).Scan(&d.ID)
}

func (r *Repository) GetDanmus(ctx context.Context, videoID int64, from, to time.Time) ([]Danmu, error) {
	query := `
		SELECT id, video_id, user_id, content, created_at
		FROM danmus
		WHERE video_id = $1
	`
	args := []any{videoID}
	if !from.IsZero() && !to.IsZero() {
		query += " AND created_at > $2 AND created_at < $3"
		args = append(args, from, to)
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Danmu
	for rows.Next() {
		var d Danmu
		if err := rows.Scan(&d.ID, &d.VideoID, &d.UserID, &d.Content, &d.CreateTime); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
