package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"gavel/internal/common/storage"
	"gavel/pkg/errors"
)

const (
	submissionFields = "id, contest_id, problem_id, member_id, language, status, answer, code_bucket, code_key, code_filename, code_content_type, created_at, version"
	executionFields  = "id, submission_id, answer, total_test_cases, approved_test_cases, input_bucket, input_key, input_filename, input_content_type, output_bucket, output_key, output_filename, output_content_type, created_at"
)

type submissionRow struct {
	Id              string    `db:"id"`
	ContestId       string    `db:"contest_id"`
	ProblemId       string    `db:"problem_id"`
	MemberId        string    `db:"member_id"`
	Language        string    `db:"language"`
	Status          string    `db:"status"`
	Answer          string    `db:"answer"`
	CodeBucket      string    `db:"code_bucket"`
	CodeKey         string    `db:"code_key"`
	CodeFilename    string    `db:"code_filename"`
	CodeContentType string    `db:"code_content_type"`
	CreatedAt       time.Time `db:"created_at"`
	Version         int64     `db:"version"`
}

// SQLStore persists submissions in MySQL.
type SQLStore struct {
	conn sqlx.SqlConn
}

func NewSQLStore(conn sqlx.SqlConn) *SQLStore {
	return &SQLStore{conn: conn}
}

func (s *SQLStore) FindByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	var row submissionRow
	query := "SELECT " + submissionFields + " FROM submissions WHERE id = ? LIMIT 1"
	err := s.conn.QueryRowCtx(ctx, &row, query, id.String())
	switch err {
	case nil:
		return row.toSubmission()
	case sqlx.ErrNotFound:
		return nil, errors.New(errors.SubmissionNotFound).WithMessage("submission not found").
			WithDetail("submission_id", id.String())
	default:
		return nil, errors.Wrapf(err, errors.InternalError, "query submission")
	}
}

// Update writes status, answer and the bumped version, guarded by the
// version the caller read.
func (s *SQLStore) Update(ctx context.Context, sub *Submission) error {
	query := "UPDATE submissions SET status = ?, answer = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?"
	res, err := s.conn.ExecCtx(ctx, query,
		string(sub.Status), string(sub.Answer), time.Now().UTC(), sub.ID.String(), sub.Version)
	if err != nil {
		return errors.Wrapf(err, errors.InternalError, "update submission")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, errors.InternalError, "update submission: rows affected")
	}
	if affected == 0 {
		// Either the row is gone or someone else won the race.
		if _, findErr := s.FindByID(ctx, sub.ID); findErr != nil {
			return findErr
		}
		return errors.New(errors.OptimisticConcurrency).WithMessage("submission was modified concurrently").
			WithDetail("submission_id", sub.ID.String()).
			WithDetail("version", sub.Version)
	}
	sub.Version++
	return nil
}

func (s *SQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	query := "INSERT INTO executions (" + executionFields + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := s.conn.ExecCtx(ctx, query,
		exec.ID.String(), exec.SubmissionID.String(), string(exec.Answer),
		exec.TotalTestCases, exec.ApprovedTestCases,
		exec.Input.Bucket, exec.Input.Key, exec.Input.Filename, exec.Input.ContentType,
		exec.Output.Bucket, exec.Output.Key, exec.Output.Filename, exec.Output.ContentType,
		exec.CreatedAt)
	if err != nil {
		return errors.Wrapf(err, errors.InternalError, "insert execution")
	}
	return nil
}

func (s *SQLStore) ListByContest(ctx context.Context, contestID uuid.UUID) ([]Submission, error) {
	var rows []submissionRow
	query := "SELECT " + submissionFields + " FROM submissions WHERE contest_id = ? ORDER BY created_at"
	if err := s.conn.QueryRowsCtx(ctx, &rows, query, contestID.String()); err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "query contest submissions")
	}
	subs := make([]Submission, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toSubmission()
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

func (r *submissionRow) toSubmission() (*Submission, error) {
	id, err := uuid.Parse(r.Id)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse submission id")
	}
	contestID, err := uuid.Parse(r.ContestId)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse submission contest id")
	}
	problemID, err := uuid.Parse(r.ProblemId)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse submission problem id")
	}
	memberID, err := uuid.Parse(r.MemberId)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "parse submission member id")
	}
	return &Submission{
		ID:        id,
		ContestID: contestID,
		ProblemID: problemID,
		MemberID:  memberID,
		Language:  Language(r.Language),
		Status:    Status(r.Status),
		Answer:    Answer(r.Answer),
		Code: storage.AttachmentRef{
			Bucket:      r.CodeBucket,
			Key:         r.CodeKey,
			Filename:    r.CodeFilename,
			ContentType: r.CodeContentType,
		},
		CreatedAt: r.CreatedAt,
		Version:   r.Version,
	}, nil
}
