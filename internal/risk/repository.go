package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/richxcame/risk-engine/pkg/cache"
	"github.com/richxcame/risk-engine/pkg/database"
	"github.com/richxcame/risk-engine/pkg/tracing"
)

// LastAssessmentTTL is how long the per-user prior assessment stays cached.
const LastAssessmentTTL = 24 * time.Hour

// Repository handles risk data operations
type Repository struct {
	db    *pgxpool.Pool
	cache *cache.Manager

	// loads the newest row on a cache miss
	latestFromDB func(ctx context.Context, userID uuid.UUID) (*PriorAssessment, error)
}

// NewRepository creates a new risk repository. cache may be nil.
func NewRepository(db *pgxpool.Pool, cache *cache.Manager) *Repository {
	r := &Repository{db: db, cache: cache}
	r.latestFromDB = r.latestAssessmentFromDB
	return r
}

// GetDeviceFingerprint retrieves the active binding for a user's device
func (r *Repository) GetDeviceFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*DeviceFingerprintRecord, error) {
	query := `
		SELECT user_id, fingerprint, COALESCE(device_identifier, ''),
		       first_seen_at, last_seen_at, trust_score, is_active
		FROM device_fingerprints
		WHERE user_id = $1 AND fingerprint = $2 AND is_active
	`

	var record DeviceFingerprintRecord
	err := tracing.TraceDBQuery(ctx, tracerName, "select", "device_fingerprints", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, userID, fingerprint).Scan(
			&record.UserID,
			&record.Fingerprint,
			&record.DeviceIdentifier,
			&record.FirstSeenAt,
			&record.LastSeenAt,
			&record.TrustScore,
			&record.IsActive,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device fingerprint: %w", err)
	}
	return &record, nil
}

// GetLatestAssessment returns the user's most recent assessment, reading
// through the Redis cache when one is configured
func (r *Repository) GetLatestAssessment(ctx context.Context, userID uuid.UUID) (*PriorAssessment, error) {
	if r.cache == nil {
		return r.latestFromDB(ctx, userID)
	}

	var prior PriorAssessment
	err := r.cache.GetOrSet(ctx, cache.Keys.LastAssessment(userID.String()), LastAssessmentTTL, &prior, func() (interface{}, error) {
		return r.latestFromDB(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &prior, nil
}

func (r *Repository) latestAssessmentFromDB(ctx context.Context, userID uuid.UUID) (*PriorAssessment, error) {
	query := `
		SELECT id, ip_address, latitude, longitude, accuracy_meters, assessed_at
		FROM risk_assessments
		WHERE user_id = $1
		ORDER BY assessed_at DESC
		LIMIT 1
	`

	var prior PriorAssessment
	var lat, lng, accuracy *float64
	err := tracing.TraceDBQuery(ctx, tracerName, "select", "risk_assessments", func(ctx context.Context) error {
		return r.db.QueryRow(ctx, query, userID).Scan(
			&prior.AssessmentID,
			&prior.IPAddress,
			&lat,
			&lng,
			&accuracy,
			&prior.AssessedAt,
		)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest assessment: %w", err)
	}

	prior.Location = locationFromColumns(lat, lng, accuracy)
	return &prior, nil
}

// CacheLatestAssessment overwrites the cached prior for a user
func (r *Repository) CacheLatestAssessment(ctx context.Context, userID uuid.UUID, prior *PriorAssessment) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Set(ctx, cache.Keys.LastAssessment(userID.String()), prior, LastAssessmentTTL)
}

// InvalidateLatestAssessment drops the cached prior so the next read goes to
// Postgres.
func (r *Repository) InvalidateLatestAssessment(ctx context.Context, userID uuid.UUID) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, cache.Keys.LastAssessment(userID.String()))
}

// bindingUpdate decides what an assessment may teach the device binding.
// BLOCK and fail-safe results write nothing. Only ALLOW may replace a stored
// device identifier; CHALLENGE and ESCROW can create a binding or fill an
// empty identifier but never overwrite one.
func bindingUpdate(a *Assessment) (deviceID string, rebind, ok bool) {
	if a.FailSafe || a.Device.Fingerprint == "" || a.Result.RecommendedAction == ActionBlock {
		return "", false, false
	}
	if a.Telco != nil {
		deviceID = a.Telco.IMEICurrent
	}
	return deviceID, a.Result.RecommendedAction == ActionAllow, true
}

// SaveAssessment inserts the assessment and, when bindingUpdate allows it,
// refreshes the device binding in the same transaction
func (r *Repository) SaveAssessment(ctx context.Context, a *Assessment) error {
	factorsJSON, err := json.Marshal(a.Result.Factors)
	if err != nil {
		return fmt.Errorf("marshal factors: %w", err)
	}
	var carrierJSON []byte
	if a.Telco != nil {
		if carrierJSON, err = json.Marshal(a.Telco); err != nil {
			return fmt.Errorf("marshal carrier signal: %w", err)
		}
	}

	var lat, lng, accuracy *float64
	if loc := a.Device.Location; loc != nil {
		lat, lng, accuracy = &loc.Latitude, &loc.Longitude, loc.AccuracyMeters
	}

	insertAssessment := `
		INSERT INTO risk_assessments (
			id, user_id, assessment_type, device_fingerprint, ip_address, user_agent,
			latitude, longitude, accuracy_meters, timezone,
			risk_score, risk_level, recommended_action, step_up_required, confidence,
			factors, carrier_signal, fail_safe, assessed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO NOTHING
	`

	upsertDevice := `
		INSERT INTO device_fingerprints (user_id, fingerprint, device_identifier, first_seen_at, last_seen_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $4)
		ON CONFLICT (user_id, fingerprint) DO UPDATE SET
			last_seen_at = GREATEST(device_fingerprints.last_seen_at, EXCLUDED.last_seen_at),
			device_identifier = CASE WHEN $5::boolean
				THEN COALESCE(EXCLUDED.device_identifier, device_fingerprints.device_identifier)
				ELSE COALESCE(device_fingerprints.device_identifier, EXCLUDED.device_identifier)
			END
	`

	return tracing.TraceDBQuery(ctx, tracerName, "insert", "risk_assessments", func(ctx context.Context) error {
		return database.RetryableTransaction(ctx, r.db, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, insertAssessment,
				a.ID,
				a.UserID,
				a.Type,
				a.Device.Fingerprint,
				a.Device.IPAddress,
				a.Device.UserAgent,
				lat,
				lng,
				accuracy,
				a.Device.Timezone,
				a.Result.RiskScore,
				a.Result.RiskLevel,
				a.Result.RecommendedAction,
				a.Result.StepUpRequired,
				a.Result.Confidence,
				factorsJSON,
				carrierJSON,
				a.FailSafe,
				a.AssessedAt,
			)
			if err != nil {
				return fmt.Errorf("insert assessment: %w", err)
			}

			deviceID, rebind, ok := bindingUpdate(a)
			if !ok {
				return nil
			}
			if _, err := tx.Exec(ctx, upsertDevice, a.UserID, a.Device.Fingerprint, deviceID, a.AssessedAt, rebind); err != nil {
				return fmt.Errorf("upsert device fingerprint: %w", err)
			}
			return nil
		})
	})
}

// ListAssessments returns a user's assessments, most recent first, with the
// total count
func (r *Repository) ListAssessments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Assessment, int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM risk_assessments WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}

	query := `
		SELECT id, user_id, assessment_type, device_fingerprint, ip_address, user_agent,
		       latitude, longitude, accuracy_meters, timezone,
		       risk_score, risk_level, recommended_action, step_up_required, confidence,
		       factors, carrier_signal, fail_safe, assessed_at
		FROM risk_assessments
		WHERE user_id = $1
		ORDER BY assessed_at DESC
		LIMIT $2 OFFSET $3
	`

	assessments, err := database.RetryableQuery(ctx, r.db, query, []interface{}{userID, limit, offset},
		func(rows pgx.Rows) ([]*Assessment, error) {
			out := make([]*Assessment, 0, limit)
			for rows.Next() {
				a, err := scanAssessment(rows)
				if err != nil {
					return nil, err
				}
				out = append(out, a)
			}
			return out, rows.Err()
		})
	if err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, total, nil
}

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	var lat, lng, accuracy *float64
	var factorsJSON, carrierJSON []byte

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Type,
		&a.Device.Fingerprint,
		&a.Device.IPAddress,
		&a.Device.UserAgent,
		&lat,
		&lng,
		&accuracy,
		&a.Device.Timezone,
		&a.Result.RiskScore,
		&a.Result.RiskLevel,
		&a.Result.RecommendedAction,
		&a.Result.StepUpRequired,
		&a.Result.Confidence,
		&factorsJSON,
		&carrierJSON,
		&a.FailSafe,
		&a.AssessedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Device.Location = locationFromColumns(lat, lng, accuracy)
	if err := json.Unmarshal(factorsJSON, &a.Result.Factors); err != nil {
		return nil, fmt.Errorf("decode factors for %s: %w", a.ID, err)
	}
	if len(carrierJSON) > 0 {
		var telco TelcoSignals
		if err := json.Unmarshal(carrierJSON, &telco); err == nil {
			a.Telco = &telco
		}
	}
	return &a, nil
}

func locationFromColumns(lat, lng, accuracy *float64) *Location {
	if lat == nil || lng == nil {
		return nil
	}
	return &Location{Latitude: *lat, Longitude: *lng, AccuracyMeters: accuracy}
}
