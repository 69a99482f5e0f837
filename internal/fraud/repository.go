package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/risk-engine/pkg/database"
	"github.com/richxcame/risk-engine/pkg/tracing"
)

const tracerName = "risk-engine/fraud"

const alertColumns = `
	id, user_id, alert_type, alert_level, status, description,
	details, risk_score, source_assessment_id, detected_at,
	investigated_at, investigated_by, resolved_at, notes, action_taken
`

// Repository handles fraud alert data operations
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new fraud repository
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateFraudAlert inserts an alert. It reports false without error when an
// alert for the same source assessment already exists.
func (r *Repository) CreateFraudAlert(ctx context.Context, alert *FraudAlert) (bool, error) {
	details := alert.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return false, fmt.Errorf("marshal alert details: %w", err)
	}

	query := `
		INSERT INTO fraud_alerts (
			id, user_id, alert_type, alert_level, status, description,
			details, risk_score, source_assessment_id, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (source_assessment_id) DO NOTHING
	`

	var inserted bool
	err = tracing.TraceDBQuery(ctx, tracerName, "insert", "fraud_alerts", func(ctx context.Context) error {
		tag, err := database.RetryableExec(ctx, r.db, query,
			alert.ID,
			alert.UserID,
			alert.AlertType,
			alert.AlertLevel,
			alert.Status,
			alert.Description,
			detailsJSON,
			alert.RiskScore,
			alert.SourceAssessmentID,
			alert.DetectedAt,
		)
		inserted = tag.RowsAffected() == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("create fraud alert: %w", err)
	}
	return inserted, nil
}

// GetFraudAlertByID retrieves a fraud alert by ID
func (r *Repository) GetFraudAlertByID(ctx context.Context, alertID uuid.UUID) (*FraudAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM fraud_alerts WHERE id = $1`

	var alert *FraudAlert
	err := tracing.TraceDBQuery(ctx, tracerName, "select", "fraud_alerts", func(ctx context.Context) error {
		var err error
		alert, err = scanAlert(r.db.QueryRow(ctx, query, alertID))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fraud alert: %w", err)
	}
	return alert, nil
}

// GetAlertsByUser retrieves a page of a user's alerts, newest first, with the total count
func (r *Repository) GetAlertsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*FraudAlert, int64, error) {
	countQuery := `SELECT COUNT(*) FROM fraud_alerts WHERE user_id = $1`
	query := `
		SELECT ` + alertColumns + `
		FROM fraud_alerts
		WHERE user_id = $1
		ORDER BY detected_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.listAlerts(ctx, countQuery, []interface{}{userID}, query, []interface{}{userID, limit, offset})
}

// GetPendingAlerts retrieves open alerts, most severe first
func (r *Repository) GetPendingAlerts(ctx context.Context, limit, offset int) ([]*FraudAlert, int64, error) {
	countQuery := `SELECT COUNT(*) FROM fraud_alerts WHERE status IN ('pending', 'investigating')`
	query := `
		SELECT ` + alertColumns + `
		FROM fraud_alerts
		WHERE status IN ('pending', 'investigating')
		ORDER BY CASE alert_level
		           WHEN 'critical' THEN 4
		           WHEN 'high' THEN 3
		           WHEN 'medium' THEN 2
		           ELSE 1
		         END DESC,
		         detected_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.listAlerts(ctx, countQuery, nil, query, []interface{}{limit, offset})
}

func (r *Repository) listAlerts(ctx context.Context, countQuery string, countArgs []interface{}, query string, args []interface{}) ([]*FraudAlert, int64, error) {
	var total int64
	var alerts []*FraudAlert
	err := tracing.TraceDBQuery(ctx, tracerName, "select", "fraud_alerts", func(ctx context.Context) error {
		if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
			return err
		}
		var err error
		alerts, err = database.RetryableQuery(ctx, r.db, query, args, func(rows pgx.Rows) ([]*FraudAlert, error) {
			out := make([]*FraudAlert, 0)
			for rows.Next() {
				alert, err := scanAlert(rows)
				if err != nil {
					return nil, err
				}
				out = append(out, alert)
			}
			return out, rows.Err()
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list fraud alerts: %w", err)
	}
	return alerts, total, nil
}

// UpdateAlertStatus moves an alert through its review workflow
func (r *Repository) UpdateAlertStatus(ctx context.Context, alertID uuid.UUID, status FraudAlertStatus, investigatedBy *uuid.UUID, notes, actionTaken string) error {
	query := `
		UPDATE fraud_alerts
		SET status = $2,
		    investigated_at = CASE WHEN $3::uuid IS NOT NULL THEN NOW() ELSE investigated_at END,
		    investigated_by = COALESCE($3, investigated_by),
		    resolved_at = CASE WHEN $2 IN ('confirmed', 'false_positive', 'resolved') THEN NOW() ELSE resolved_at END,
		    notes = COALESCE(NULLIF($4, ''), notes),
		    action_taken = COALESCE(NULLIF($5, ''), action_taken),
		    updated_at = NOW()
		WHERE id = $1
	`

	var affected int64
	err := tracing.TraceDBQuery(ctx, tracerName, "update", "fraud_alerts", func(ctx context.Context) error {
		tag, err := database.RetryableExec(ctx, r.db, query, alertID, status, investigatedBy, notes, actionTaken)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update fraud alert status: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// CountFraudAlertsSince counts a user's alerts detected at or after since,
// ignoring those dismissed as false positives
func (r *Repository) CountFraudAlertsSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM fraud_alerts
		WHERE user_id = $1
		  AND detected_at >= $2
		  AND status <> 'false_positive'
	`

	var count int
	err := tracing.TraceDBQuery(ctx, tracerName, "select", "fraud_alerts", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, userID, since).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count fraud alerts: %w", err)
	}
	return count, nil
}

func scanAlert(row pgx.Row) (*FraudAlert, error) {
	var alert FraudAlert
	var detailsJSON []byte
	var notes, actionTaken *string

	err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.AlertType,
		&alert.AlertLevel,
		&alert.Status,
		&alert.Description,
		&detailsJSON,
		&alert.RiskScore,
		&alert.SourceAssessmentID,
		&alert.DetectedAt,
		&alert.InvestigatedAt,
		&alert.InvestigatedBy,
		&alert.ResolvedAt,
		&notes,
		&actionTaken,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(detailsJSON, &alert.Details); err != nil {
		alert.Details = make(map[string]interface{})
	}
	if notes != nil {
		alert.Notes = *notes
	}
	if actionTaken != nil {
		alert.ActionTaken = *actionTaken
	}
	return &alert, nil
}
