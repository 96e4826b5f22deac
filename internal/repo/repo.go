package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aadhira3355/BluePulse/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// Species catalog

func (r Repo) InsertSpecies(ctx context.Context, s domain.Species) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO species(id,name,scientific,latitude,longitude,confidence,status,type,abundance,last_seen) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Name, s.Scientific, s.Latitude, s.Longitude, s.Confidence, s.Status, s.Type, s.Abundance, s.LastSeen)
	return err
}

func (r Repo) ListSpecies(ctx context.Context) ([]domain.Species, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,scientific,latitude,longitude,confidence,status,type,abundance,last_seen FROM species ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Species
	for rows.Next() {
		var s domain.Species
		if err := rows.Scan(&s.ID, &s.Name, &s.Scientific, &s.Latitude, &s.Longitude, &s.Confidence, &s.Status, &s.Type, &s.Abundance, &s.LastSeen); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Hotspots

func (r Repo) InsertHotspot(ctx context.Context, h domain.Hotspot) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO hotspots(location,diversity_index,species_count) VALUES (?,?,?)`,
		h.Location, h.DiversityIndex, h.SpeciesCount)
	return err
}

func (r Repo) ListHotspots(ctx context.Context) ([]domain.Hotspot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT location,diversity_index,species_count FROM hotspots ORDER BY diversity_index DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Hotspot
	for rows.Next() {
		var h domain.Hotspot
		if err := rows.Scan(&h.Location, &h.DiversityIndex, &h.SpeciesCount); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// Readings

func (r Repo) UpsertReading(ctx context.Context, rd domain.Reading) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO readings(parameter,value,unit,trend,status) VALUES (?,?,?,?,?)
		ON CONFLICT(parameter) DO UPDATE SET value=excluded.value, unit=excluded.unit, trend=excluded.trend, status=excluded.status`,
		rd.Parameter, rd.Value, rd.Unit, rd.Trend, rd.Status)
	return err
}

func (r Repo) ListReadings(ctx context.Context) ([]domain.Reading, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT parameter,value,unit,trend,status FROM readings ORDER BY parameter`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reading
	for rows.Next() {
		var rd domain.Reading
		if err := rows.Scan(&rd.Parameter, &rd.Value, &rd.Unit, &rd.Trend, &rd.Status); err != nil {
			return nil, err
		}
		res = append(res, rd)
	}
	return res, rows.Err()
}

// Model registry

func (r Repo) InsertModel(ctx context.Context, m domain.Model) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO models(id,name,type,status,accuracy,last_trained) VALUES (?,?,?,?,?,?)`,
		m.ID, m.Name, m.Type, m.Status, m.Accuracy, m.LastTrained)
	return err
}

func (r Repo) GetModel(ctx context.Context, id string) (domain.Model, error) {
	var m domain.Model
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,type,status,accuracy,last_trained FROM models WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.Type, &m.Status, &m.Accuracy, &m.LastTrained)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListModels(ctx context.Context) ([]domain.Model, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,type,status,accuracy,last_trained FROM models ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Model
	for rows.Next() {
		var m domain.Model
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Status, &m.Accuracy, &m.LastTrained); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// Activities

func (r Repo) InsertActivity(ctx context.Context, a domain.Activity) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO activities(type,message,ts,confidence,accuracy,severity) VALUES (?,?,?,?,?,?)`,
		a.Type, a.Message, a.Timestamp, a.Confidence, a.Accuracy, a.Severity)
	return err
}

func (r Repo) ListActivities(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,type,message,ts,confidence,accuracy,severity FROM activities ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var conf, acc sql.NullInt64
		var sev sql.NullString
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &a.Timestamp, &conf, &acc, &sev); err != nil {
			return nil, err
		}
		if conf.Valid {
			v := int(conf.Int64)
			a.Confidence = &v
		}
		if acc.Valid {
			v := int(acc.Int64)
			a.Accuracy = &v
		}
		if sev.Valid {
			v := sev.String
			a.Severity = &v
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Uploads

func (r Repo) InsertUpload(ctx context.Context, u domain.Upload) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO uploads(filename,size,content_type,upload_time) VALUES (?,?,?,?)`,
		u.Filename, u.Size, u.ContentType, u.UploadTime)
	return err
}

func (r Repo) CountUploads(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads`).Scan(&n)
	return n, err
}

// Task runs

func scanTaskRun(scan func(...any) error) (domain.TaskRun, error) {
	var t domain.TaskRun
	var stageName, paramsJSON, resultJSON, completedAt sql.NullString
	err := scan(&t.ID, &t.Kind, &t.Subject, &t.Status, &t.CurrentStage, &t.TotalStages, &stageName, &paramsJSON, &resultJSON, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.StageName = stageName.String
	t.ParamsJSON = paramsJSON.String
	t.ResultJSON = resultJSON.String
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

const taskRunCols = `id,kind,subject,status,current_stage,total_stages,stage_name,params_json,result_json,created_at,updated_at,completed_at`

func (r Repo) InsertTaskRun(ctx context.Context, t domain.TaskRun) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_runs(`+taskRunCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Kind, t.Subject, t.Status, t.CurrentStage, t.TotalStages, nullable(t.StageName), nullable(t.ParamsJSON), nullable(t.ResultJSON), t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	return err
}

func (r Repo) GetTaskRun(ctx context.Context, id string) (domain.TaskRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskRunCols+` FROM task_runs WHERE id=?`, id)
	return scanTaskRun(row.Scan)
}

// AdvanceTaskRunTx records one completed stage inside the given transaction.
func (r Repo) AdvanceTaskRunTx(ctx context.Context, tx *sql.Tx, id string, stage int, stageName, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE task_runs SET current_stage=?, stage_name=?, status=?, updated_at=? WHERE id=?`,
		stage, nullable(stageName), status, updatedAt, id)
	if err != nil {
		return err
	}
	return ensureRow(res, id)
}

// CompleteTaskRunTx marks the run completed with an optional result payload.
func (r Repo) CompleteTaskRunTx(ctx context.Context, tx *sql.Tx, id, resultJSON, completedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE task_runs SET status=?, result_json=?, updated_at=?, completed_at=? WHERE id=?`,
		domain.RunCompleted, nullable(resultJSON), completedAt, completedAt, id)
	if err != nil {
		return err
	}
	return ensureRow(res, id)
}

func (r Repo) SetModelStatus(ctx context.Context, id, status, lastTrained string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE models SET status=?, last_trained=? WHERE id=?`, status, lastTrained, id)
	return err
}

// Events

func (r Repo) ListEvents(ctx context.Context, entityKind, entityID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),payload_json FROM events
		WHERE (?='' OR entity_kind=?) AND (?='' OR entity_id=?) ORDER BY id DESC LIMIT ?`,
		entityKind, entityKind, entityID, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func ensureRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task run %s: %w", id, ErrNotFound)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
