package store

import (
	"database/sql"
	"time"

	"github.com/cesargomez89/stemforge/internal/domain"
)

func (db *DB) CreateJob(job *domain.Job) error {
	query := `INSERT INTO jobs (id, type, stage, url, title, quality, mode, percent, created_at, updated_at)
		VALUES (:id, :type, :stage, :url, :title, :quality, :mode, :percent, :created_at, :updated_at)`

	_, err := db.NamedExec(query, job)
	return err
}

func (db *DB) GetJob(id string) (*domain.Job, error) {
	query := `SELECT id, type, stage, url, title, quality, mode, percent, created_at, updated_at, error FROM jobs WHERE id = ?`

	job := &domain.Job{}
	err := db.Get(job, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// FinishJob records a job's terminal outcome.
func (db *DB) FinishJob(id string, stage domain.Stage, percent int, errorMsg string) error {
	if errorMsg != "" {
		query := `UPDATE jobs SET stage = ?, percent = ?, error = ?, updated_at = ? WHERE id = ?`
		_, err := db.Exec(query, stage, percent, errorMsg, time.Now(), id)
		return err
	}
	query := `UPDATE jobs SET stage = ?, percent = ?, updated_at = ? WHERE id = ?`
	_, err := db.Exec(query, stage, percent, time.Now(), id)
	return err
}

func (db *DB) MarkCancelled(id string) error {
	query := `UPDATE jobs SET stage = ?, updated_at = ? WHERE id = ?`
	_, err := db.Exec(query, domain.StageCancelled, time.Now(), id)
	return err
}

func (db *DB) ListJobs(limit int) ([]*domain.Job, error) {
	query := `SELECT id, type, stage, url, title, quality, mode, percent, created_at, updated_at, error FROM jobs ORDER BY created_at DESC LIMIT ?`

	var jobs []*domain.Job
	err := db.Select(&jobs, query, limit)
	return jobs, err
}

// LatestActiveJob returns the most recent history row still in an
// active stage, or nil.
func (db *DB) LatestActiveJob() (*domain.Job, error) {
	query := `SELECT id, type, stage, url, title, quality, mode, percent, created_at, updated_at FROM jobs
		WHERE stage IN ('downloading', 'processing', 'finalizing')
		ORDER BY created_at DESC LIMIT 1`

	job := &domain.Job{}
	err := db.Get(job, query)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}
