package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUndefinedColumn  = "42703"
	pgUndefinedTable   = "42P01"
	pgNotNullViolation = "23502"
)

func isUndefinedColumn(err error) bool { return hasPgCode(err, pgUndefinedColumn) }
func isUndefinedTable(err error) bool  { return hasPgCode(err, pgUndefinedTable) }

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// translateInsertError rewrites a coordinate NOT NULL violation into the
// user-actionable message; everything else passes through unchanged.
func translateInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgNotNullViolation &&
		(pgErr.ColumnName == "latitude" || pgErr.ColumnName == "longitude") {
		return &apiError{Status: http.StatusInternalServerError, Code: "missing_coordinates", Message: missingCoordinatesMessage}
	}
	return err
}

// pendingInsertStrategy is one named way of landing a submission in a
// moderation queue. Strategies run in order; FallthroughOn decides whether
// a failure hands over to the next strategy or stops the cascade.
type pendingInsertStrategy struct {
	Name          string
	Insert        func(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error)
	FallthroughOn func(err error) bool
}

func (a *App) pendingInsertStrategies() []pendingInsertStrategy {
	return []pendingInsertStrategy{
		{
			Name:   "pending_with_end_date",
			Insert: a.insertPendingWithEndDate,
			FallthroughOn: func(err error) bool {
				return isUndefinedColumn(err) || isUndefinedTable(err)
			},
		},
		{
			Name:          "pending_without_end_date",
			Insert:        a.insertPendingWithoutEndDate,
			FallthroughOn: isUndefinedTable,
		},
		{
			Name:          "legacy_submissions",
			Insert:        a.insertLegacySubmission,
			FallthroughOn: func(error) bool { return false },
		},
	}
}

// storeInsertPendingSubmission tries each schema generation in order so a
// single binary can serve databases migrated at different times.
func (a *App) storeInsertPendingSubmission(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (pendingInsertResult, error) {
	var lastErr error
	for _, strategy := range a.pendingInsertStrategies() {
		id, err := strategy.Insert(ctx, rec, sessions)
		if err == nil {
			if strategy.Name != "pending_with_end_date" {
				a.log.Info("pending insert used fallback strategy", "strategy", strategy.Name, "submission_id", id)
			}
			return pendingInsertResult{ID: id, Strategy: strategy.Name}, nil
		}
		if strategy.FallthroughOn(err) {
			a.log.Warn("pending insert strategy failed, trying next", "strategy", strategy.Name, "err", err)
			lastErr = err
			continue
		}
		return pendingInsertResult{}, translateInsertError(err)
	}
	return pendingInsertResult{}, translateInsertError(lastErr)
}

func (a *App) insertPendingWithEndDate(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error) {
	var lat, lng any
	if rec.Coords != nil {
		lat = rec.Coords.Latitude
		lng = rec.Coords.Longitude
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO pending_mosques (
			id, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, taraweeh_end_date, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending')
	`, rec.ID, rec.Name, rec.Address, rec.City, rec.State, lat, lng,
		rec.SweetType, rec.DistributionTime, rec.CrowdLevel, rec.FirstEndDate)
	if err != nil {
		return "", err
	}

	if err := a.insertSessionRows(ctx, "pending_taraweeh_sessions", rec.ID, sessions); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (a *App) insertPendingWithoutEndDate(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error) {
	var lat, lng any
	if rec.Coords != nil {
		lat = rec.Coords.Latitude
		lng = rec.Coords.Longitude
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO pending_mosques (
			id, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending')
	`, rec.ID, rec.Name, rec.Address, rec.City, rec.State, lat, lng,
		rec.SweetType, rec.DistributionTime, rec.CrowdLevel)
	if err != nil {
		return "", err
	}

	if err := a.insertSessionRows(ctx, "pending_taraweeh_sessions", rec.ID, sessions); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// insertLegacySubmission targets the table names of the oldest schema
// generation, with a null approval timestamp mirroring the approved shape.
func (a *App) insertLegacySubmission(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error) {
	var lat, lng any
	if rec.Coords != nil {
		lat = rec.Coords.Latitude
		lng = rec.Coords.Longitude
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO mosque_submissions (
			id, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, status, approved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', NULL)
	`, rec.ID, rec.Name, rec.Address, rec.City, rec.State, lat, lng,
		rec.SweetType, rec.DistributionTime, rec.CrowdLevel)
	if err != nil {
		return "", err
	}

	if err := a.insertSessionRows(ctx, "mosque_submission_sessions", rec.ID, sessions); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (a *App) storeListPendingSubmissions(ctx context.Context) ([]PendingSubmission, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id::text, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, taraweeh_end_date::text,
			status, created_at::text
		FROM pending_mosques
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingSubmission
	for rows.Next() {
		var sub PendingSubmission
		var lat, lng sql.NullFloat64
		var distributionTime, crowdLevel, endDate sql.NullString
		err := rows.Scan(
			&sub.ID, &sub.Name, &sub.Address, &sub.City, &sub.State,
			&lat, &lng, &sub.SweetType, &distributionTime, &crowdLevel,
			&endDate, &sub.Status, &sub.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if lat.Valid {
			sub.Latitude = &lat.Float64
		}
		if lng.Valid {
			sub.Longitude = &lng.Float64
		}
		if distributionTime.Valid {
			sub.DistributionTime = &distributionTime.String
		}
		if crowdLevel.Valid {
			sub.CrowdLevel = &crowdLevel.String
		}
		if endDate.Valid {
			sub.TaraweehEndDate = &endDate.String
		}
		sub.Sessions = []TaraweehSession{}
		pending = append(pending, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := a.attachPendingSessions(ctx, pending); err != nil {
		return nil, err
	}
	return pending, nil
}

func (a *App) attachPendingSessions(ctx context.Context, pending []PendingSubmission) error {
	if len(pending) == 0 {
		return nil
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT mosque_id::text, taraweeh_end_date::text, session_number
		FROM pending_taraweeh_sessions
		ORDER BY mosque_id, session_number ASC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	byMosque := make(map[string][]TaraweehSession)
	for rows.Next() {
		var mosqueID string
		var session TaraweehSession
		if err := rows.Scan(&mosqueID, &session.EndDate, &session.SessionNumber); err != nil {
			return err
		}
		byMosque[mosqueID] = append(byMosque[mosqueID], session)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range pending {
		if sessions, ok := byMosque[pending[i].ID]; ok {
			pending[i].Sessions = sessions
		}
	}
	return nil
}

// storeApprovePendingSubmission publishes a pending submission: the approved
// row gets zeroed counters and a fresh approval timestamp, sessions are
// carried over, and the pending row is removed. Runs in a transaction so a
// half-approved listing can never be observed.
func (a *App) storeApprovePendingSubmission(ctx context.Context, id string) (*Mosque, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var sub PendingSubmission
	var lat, lng sql.NullFloat64
	var distributionTime, crowdLevel sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT id::text, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level
		FROM pending_mosques
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&sub.ID, &sub.Name, &sub.Address, &sub.City, &sub.State,
		&lat, &lng, &sub.SweetType, &distributionTime, &crowdLevel,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Submission not found"}
		}
		return nil, err
	}

	if !lat.Valid || !lng.Valid {
		return nil, &apiError{Status: http.StatusUnprocessableEntity, Code: "missing_coordinates", Message: missingCoordinatesMessage}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO approved_mosques (
			id, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, views, upvotes, approved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, NOW())
	`, sub.ID, sub.Name, sub.Address, sub.City, sub.State, lat.Float64, lng.Float64,
		sub.SweetType, distributionTime, crowdLevel)
	if err != nil {
		return nil, translateInsertError(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO taraweeh_sessions (mosque_id, taraweeh_end_date, session_number)
		SELECT mosque_id, taraweeh_end_date, session_number
		FROM pending_taraweeh_sessions
		WHERE mosque_id = $1
	`, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_mosques WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return a.getApprovedMosque(ctx, id)
}

func (a *App) storeRejectPendingSubmission(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM pending_mosques WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Submission not found"}
	}
	return nil
}
