package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

func (a *App) storeInsertApprovedMosque(ctx context.Context, rec SubmissionRecord, sessions []TaraweehSession) (string, error) {
	var lat, lng any
	if rec.Coords != nil {
		lat = rec.Coords.Latitude
		lng = rec.Coords.Longitude
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO approved_mosques (
			id, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, views, upvotes, approved_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, 0, NOW())
	`, rec.ID, rec.Name, rec.Address, rec.City, rec.State, lat, lng,
		rec.SweetType, rec.DistributionTime, rec.CrowdLevel)
	if err != nil {
		return "", translateInsertError(err)
	}

	if err := a.insertSessionRows(ctx, "taraweeh_sessions", rec.ID, sessions); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (a *App) insertSessionRows(ctx context.Context, table, mosqueID string, sessions []TaraweehSession) error {
	for _, session := range sessions {
		_, err := a.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (mosque_id, taraweeh_end_date, session_number)
			VALUES ($1, $2, $3)
		`, table), mosqueID, session.EndDate, session.SessionNumber)
		if err != nil {
			return translateInsertError(err)
		}
	}
	return nil
}

func (a *App) storeListApprovedMosques(ctx context.Context) ([]Mosque, error) {
	return a.queryMosques(ctx, `ORDER BY approved_at DESC`)
}

func (a *App) storeListRankedMosques(ctx context.Context, sortBy string) ([]Mosque, error) {
	if !containsString(analyticsSorts, sortBy) {
		sortBy = "views"
	}
	return a.queryMosques(ctx, fmt.Sprintf(`ORDER BY %s DESC`, sortBy))
}

func (a *App) queryMosques(ctx context.Context, orderClause string) ([]Mosque, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id::text, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, views, upvotes,
			created_at::text, approved_at::text
		FROM approved_mosques
	`+orderClause)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mosques []Mosque
	for rows.Next() {
		mosque, err := scanMosque(rows)
		if err != nil {
			return nil, err
		}
		mosques = append(mosques, *mosque)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := a.attachSessions(ctx, mosques); err != nil {
		return nil, err
	}
	return mosques, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMosque(row rowScanner) (*Mosque, error) {
	var mosque Mosque
	var distributionTime, crowdLevel sql.NullString
	err := row.Scan(
		&mosque.ID, &mosque.Name, &mosque.Address, &mosque.City, &mosque.State,
		&mosque.Latitude, &mosque.Longitude, &mosque.SweetType,
		&distributionTime, &crowdLevel, &mosque.Views, &mosque.Upvotes,
		&mosque.CreatedAt, &mosque.ApprovedAt,
	)
	if err != nil {
		return nil, err
	}
	if distributionTime.Valid {
		mosque.DistributionTime = &distributionTime.String
	}
	if crowdLevel.Valid {
		mosque.CrowdLevel = &crowdLevel.String
	}
	mosque.Sessions = []TaraweehSession{}
	return &mosque, nil
}

func (a *App) attachSessions(ctx context.Context, mosques []Mosque) error {
	if len(mosques) == 0 {
		return nil
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT mosque_id::text, taraweeh_end_date::text, session_number
		FROM taraweeh_sessions
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

	for i := range mosques {
		if sessions, ok := byMosque[mosques[i].ID]; ok {
			mosques[i].Sessions = sessions
		}
	}
	return nil
}

func (a *App) storeGetApprovedMosque(ctx context.Context, id string) (*Mosque, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id::text, name, address, city, state, latitude, longitude,
			sweet_type, distribution_time, crowd_level, views, upvotes,
			created_at::text, approved_at::text
		FROM approved_mosques
		WHERE id = $1
	`, id)

	mosque, err := scanMosque(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Mosque not found"}
		}
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT taraweeh_end_date::text, session_number
		FROM taraweeh_sessions
		WHERE mosque_id = $1
		ORDER BY session_number ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var session TaraweehSession
		if err := rows.Scan(&session.EndDate, &session.SessionNumber); err != nil {
			return nil, err
		}
		mosque.Sessions = append(mosque.Sessions, session)
	}
	return mosque, rows.Err()
}

// storeIncrementMosqueCounter bumps views or upvotes with a single atomic
// UPDATE so concurrent requests against the same mosque cannot lose counts.
func (a *App) storeIncrementMosqueCounter(ctx context.Context, id, counter string) (int, error) {
	if counter != "views" && counter != "upvotes" {
		return 0, fmt.Errorf("unknown counter %q", counter)
	}

	var value int
	err := a.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE approved_mosques
		SET %s = %s + 1
		WHERE id = $1
		RETURNING %s
	`, counter, counter, counter), id).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Mosque not found"}
		}
		return 0, err
	}
	return value, nil
}

func (a *App) storeDeleteApprovedMosque(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM approved_mosques WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &apiError{Status: http.StatusNotFound, Code: "not_found", Message: "Mosque not found"}
	}
	return nil
}

func (a *App) storeLoadDashboardStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{Recent: []Mosque{}}

	err := a.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(views), 0), COALESCE(SUM(upvotes), 0)
		FROM approved_mosques
	`).Scan(&stats.ApprovedCount, &stats.TotalViews, &stats.TotalUpvotes)
	if err != nil {
		return nil, err
	}

	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mosques`).Scan(&stats.PendingCount); err != nil {
		return nil, err
	}

	recent, err := a.queryMosques(ctx, `ORDER BY approved_at DESC LIMIT 5`)
	if err != nil {
		return nil, err
	}
	if recent != nil {
		stats.Recent = recent
	}
	return stats, nil
}
