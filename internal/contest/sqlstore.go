package contest

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"gavel/internal/common/storage"
	"gavel/pkg/errors"
)

const (
	contestFields = "id, slug, title, start_at, end_at, auto_freeze_at, frozen_at, unfrozen_at, auto_judge_enabled, version"
	problemFields = "id, contest_id, letter, title, time_limit_ms, memory_limit_mb, test_cases_bucket, test_cases_key, test_cases_filename, test_cases_content_type"
	memberFields  = "id, contest_id, name, type"
)

type contestRow struct {
	Id               string       `db:"id"`
	Slug             string       `db:"slug"`
	Title            string       `db:"title"`
	StartAt          time.Time    `db:"start_at"`
	EndAt            time.Time    `db:"end_at"`
	AutoFreezeAt     sql.NullTime `db:"auto_freeze_at"`
	FrozenAt         sql.NullTime `db:"frozen_at"`
	UnfrozenAt       sql.NullTime `db:"unfrozen_at"`
	AutoJudgeEnabled bool         `db:"auto_judge_enabled"`
	Version          int64        `db:"version"`
}

type problemRow struct {
	Id                   string `db:"id"`
	ContestId            string `db:"contest_id"`
	Letter               string `db:"letter"`
	Title                string `db:"title"`
	TimeLimitMs          int64  `db:"time_limit_ms"`
	MemoryLimitMb        int64  `db:"memory_limit_mb"`
	TestCasesBucket      string `db:"test_cases_bucket"`
	TestCasesKey         string `db:"test_cases_key"`
	TestCasesFilename    string `db:"test_cases_filename"`
	TestCasesContentType string `db:"test_cases_content_type"`
}

type memberRow struct {
	Id        string `db:"id"`
	ContestId string `db:"contest_id"`
	Name      string `db:"name"`
	Type      string `db:"type"`
}

// SQLStore reads contest data from MySQL.
type SQLStore struct {
	conn sqlx.SqlConn
}

func NewSQLStore(conn sqlx.SqlConn) *SQLStore {
	return &SQLStore{conn: conn}
}

func (s *SQLStore) FindByID(ctx context.Context, id uuid.UUID) (*Contest, error) {
	var row contestRow
	query := "SELECT " + contestFields + " FROM contests WHERE id = ? LIMIT 1"
	err := s.conn.QueryRowCtx(ctx, &row, query, id.String())
	switch err {
	case nil:
		return row.toContest()
	case sqlx.ErrNotFound:
		return nil, errors.New(errors.ContestNotFound).WithMessage("contest not found").
			WithDetail("contest_id", id.String())
	default:
		return nil, errors.Wrapf(err, errors.InternalError, "query contest")
	}
}

func (s *SQLStore) FindProblem(ctx context.Context, id uuid.UUID) (*Problem, error) {
	var row problemRow
	query := "SELECT " + problemFields + " FROM problems WHERE id = ? LIMIT 1"
	err := s.conn.QueryRowCtx(ctx, &row, query, id.String())
	switch err {
	case nil:
		return row.toProblem()
	case sqlx.ErrNotFound:
		return nil, errors.New(errors.NotFound).WithMessage("problem not found").
			WithDetail("problem_id", id.String())
	default:
		return nil, errors.Wrapf(err, errors.InternalError, "query problem")
	}
}

func (s *SQLStore) ListProblems(ctx context.Context, contestID uuid.UUID) ([]Problem, error) {
	var rows []problemRow
	query := "SELECT " + problemFields + " FROM problems WHERE contest_id = ? ORDER BY letter"
	if err := s.conn.QueryRowsCtx(ctx, &rows, query, contestID.String()); err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "query problems")
	}
	problems := make([]Problem, 0, len(rows))
	for _, row := range rows {
		p, err := row.toProblem()
		if err != nil {
			return nil, err
		}
		problems = append(problems, *p)
	}
	return problems, nil
}

func (s *SQLStore) ListMembers(ctx context.Context, contestID uuid.UUID) ([]Member, error) {
	var rows []memberRow
	query := "SELECT " + memberFields + " FROM members WHERE contest_id = ? ORDER BY name"
	if err := s.conn.QueryRowsCtx(ctx, &rows, query, contestID.String()); err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "query members")
	}
	members := make([]Member, 0, len(rows))
	for _, row := range rows {
		m, err := row.toMember()
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, nil
}

func (r *contestRow) toContest() (*Contest, error) {
	id, err := uuid.Parse(r.Id)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse contest id")
	}
	return &Contest{
		ID:           id,
		Slug:         r.Slug,
		Title:        r.Title,
		StartAt:      r.StartAt,
		EndAt:        r.EndAt,
		AutoFreezeAt: nullTimePtr(r.AutoFreezeAt),
		FrozenAt:     nullTimePtr(r.FrozenAt),
		UnfrozenAt:   nullTimePtr(r.UnfrozenAt),
		Settings:     Settings{AutoJudgeEnabled: r.AutoJudgeEnabled},
		Version:      r.Version,
	}, nil
}

func (r *problemRow) toProblem() (*Problem, error) {
	id, err := uuid.Parse(r.Id)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse problem id")
	}
	contestID, err := uuid.Parse(r.ContestId)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse problem contest id")
	}
	return &Problem{
		ID:            id,
		ContestID:     contestID,
		Letter:        r.Letter,
		Title:         r.Title,
		TimeLimitMs:   r.TimeLimitMs,
		MemoryLimitMB: r.MemoryLimitMb,
		TestCases: storage.AttachmentRef{
			Bucket:      r.TestCasesBucket,
			Key:         r.TestCasesKey,
			Filename:    r.TestCasesFilename,
			ContentType: r.TestCasesContentType,
		},
	}, nil
}

func (r *memberRow) toMember() (*Member, error) {
	id, err := uuid.Parse(r.Id)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse member id")
	}
	contestID, err := uuid.Parse(r.ContestId)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse member contest id")
	}
	return &Member{
		ID:        id,
		ContestID: contestID,
		Name:      r.Name,
		Type:      MemberType(r.Type),
	}, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
