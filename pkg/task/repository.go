package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrTaskNotFound = errors.New("task not found")

type Repository interface {
	// Store persists a new task row.
	Store(ctx context.Context, task Task) error
	Update(ctx context.Context, task Task) error
	Get(ctx context.Context, id string) (Task, error)
	// FindUnfinished returns tasks left queued or running, used to re-queue
	// work after a restart.
	FindUnfinished(ctx context.Context) ([]Task, error)
}

type RepositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Store(ctx context.Context, task Task) error {
	query := `INSERT INTO sync_task (id, kind, payload, status, retries, result, error, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not prepare query: %w", err)
		log.Error(err)
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		task.Id,
		task.Kind,
		string(task.Payload),
		string(task.Status),
		task.Retries,
		nullableString(task.Result),
		nullableText(task.Error),
		task.CreatedAt.Unix(),
		task.UpdatedAt.Unix(),
	)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) Update(ctx context.Context, task Task) error {
	query := `UPDATE sync_task SET status = $1, retries = $2, result = $3, error = $4, updated_at = $5 WHERE id = $6`
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		err := fmt.Errorf("could not prepare query: %w", err)
		log.Error(err)
		return err
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx,
		string(task.Status),
		task.Retries,
		nullableString(task.Result),
		nullableText(task.Error),
		task.UpdatedAt.Unix(),
		task.Id,
	)
	if err != nil {
		err := fmt.Errorf("could not execute query: %w", err)
		log.Error(err)
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		err := fmt.Errorf("could not get rows affected: %w", err)
		log.Error(err)
		return err
	}
	if rowsAffected != 1 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *RepositoryImpl) Get(ctx context.Context, id string) (Task, error) {
	query := `SELECT id, kind, payload, status, retries, result, error, created_at, updated_at
				FROM sync_task WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	} else if err != nil {
		err := fmt.Errorf("could not query task: %w", err)
		log.Error(err)
		return Task{}, err
	}
	return task, nil
}

func (r *RepositoryImpl) FindUnfinished(ctx context.Context) ([]Task, error) {
	query := `SELECT id, kind, payload, status, retries, result, error, created_at, updated_at
				FROM sync_task WHERE status IN ($1, $2) ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, string(StatusQueued), string(StatusRunning))
	if err != nil {
		err := fmt.Errorf("could not query unfinished tasks: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			err := fmt.Errorf("could not scan task: %w", err)
			log.Error(err)
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var task Task
	var payload string
	var status string
	var result, errorMsg sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(
		&task.Id,
		&task.Kind,
		&payload,
		&status,
		&task.Retries,
		&result,
		&errorMsg,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Task{}, err
	}
	task.Payload = []byte(payload)
	task.Status = Status(status)
	if result.Valid {
		task.Result = []byte(result.String)
	}
	if errorMsg.Valid {
		task.Error = errorMsg.String
	}
	task.CreatedAt = time.Unix(createdAt, 0)
	task.UpdatedAt = time.Unix(updatedAt, 0)
	return task, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullableText(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
