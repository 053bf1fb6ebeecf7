package store

import (
	"context"
	"time"

	"PPresence/module/friend/model"
	"PPresence/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS friend_request (
	id           BIGSERIAL PRIMARY KEY,
	from_user_id BIGINT      NOT NULL,
	to_user_id   BIGINT      NOT NULL,
	note         TEXT        NOT NULL DEFAULT '',
	status       VARCHAR(16) NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	handled_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_friend_request_to ON friend_request (to_user_id, status);`

const (
	insertSQL     = `INSERT INTO friend_request (from_user_id, to_user_id, note, status) VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	selectSQL     = `SELECT id, from_user_id, to_user_id, note, status, created_at, handled_at FROM friend_request WHERE id = $1`
	pendingSQL    = `SELECT EXISTS (SELECT 1 FROM friend_request WHERE from_user_id = $1 AND to_user_id = $2 AND status = 'pending')`
	transitionSQL = `UPDATE friend_request SET status = $2, handled_at = $3 WHERE id = $1 AND status = 'pending'`
)

// DB *pgxpool.Pool 满足
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	db DB
}

func NewPgStore(db DB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return errs.WrapMsg(err, "create table "+model.TableFriendRequest)
	}
	return nil
}

func (s *PgStore) Create(ctx context.Context, r *model.Request) error {
	err := s.db.QueryRow(ctx, insertSQL, r.FromUserID, r.ToUserID, r.Note, string(r.Status)).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return errs.WrapMsg(err, "insert friend request", "from", r.FromUserID, "to", r.ToUserID)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id int64) (*model.Request, error) {
	var (
		r      model.Request
		status string
	)
	err := s.db.QueryRow(ctx, selectSQL, id).
		Scan(&r.ID, &r.FromUserID, &r.ToUserID, &r.Note, &status, &r.CreatedAt, &r.HandledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("friend request", "id", id)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "select friend request", "id", id)
	}
	r.Status = model.Status(status)
	return &r, nil
}

func (s *PgStore) HasPending(ctx context.Context, from, to int64) (bool, error) {
	var ok bool
	if err := s.db.QueryRow(ctx, pendingSQL, from, to).Scan(&ok); err != nil {
		return false, errs.WrapMsg(err, "check pending friend request")
	}
	return ok, nil
}

func (s *PgStore) Transition(ctx context.Context, id int64, to model.Status, at time.Time) error {
	tag, err := s.db.Exec(ctx, transitionSQL, id, string(to), at)
	if err != nil {
		return errs.WrapMsg(err, "update friend request", "id", id)
	}
	if tag.RowsAffected() == 0 {
		// 区分不存在和已处理
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return errs.ErrStateConflict.WrapMsg("friend request already handled", "id", id)
	}
	return nil
}
