package pgrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/project"
)

const projectSelect = `
	SELECT p.*, s.name AS student_name, s.email AS student_email
	FROM project p
	LEFT JOIN "user" s ON s.id = p.student_id`

type projectRow struct {
	ID           string          `db:"id"`
	StudentID    sql.NullString  `db:"student_id"`
	AdvisorID    sql.NullString  `db:"advisor_id"`
	Title        string          `db:"title"`
	Faculty      sql.NullString  `db:"faculty"`
	Budget       sql.NullFloat64 `db:"budget"`
	StartDate    sql.NullTime    `db:"start_date"`
	EndDate      sql.NullTime    `db:"end_date"`
	Status       string          `db:"status"`
	Phase        int             `db:"phase"`
	RiskLevel    string          `db:"risk_level"`
	Similarity   int             `db:"turnitin"`
	CreatedAt    sql.NullTime    `db:"created_at"`
	UpdatedAt    sql.NullTime    `db:"updated_at"`
	StudentName  sql.NullString  `db:"student_name"`
	StudentEmail sql.NullString  `db:"student_email"`
}

func (r projectRow) unpack() project.Project {
	return project.Project{
		ID:           r.ID,
		StudentID:    r.StudentID.String,
		AdvisorID:    r.AdvisorID.String,
		Title:        r.Title,
		Faculty:      r.Faculty.String,
		Budget:       r.Budget.Float64,
		StartDate:    r.StartDate.Time,
		EndDate:      r.EndDate.Time,
		Status:       project.Status(r.Status),
		Phase:        project.Phase(r.Phase),
		RiskLevel:    project.RiskLevel(r.RiskLevel),
		Similarity:   r.Similarity,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		StudentName:  r.StudentName.String,
		StudentEmail: r.StudentEmail.String,
	}
}

type observationRow struct {
	ID         string       `db:"id"`
	ProjectID  string       `db:"project_id"`
	DirectorID string       `db:"director_id"`
	Comment    string       `db:"comment"`
	IsResolved bool         `db:"is_resolved"`
	CreatedAt  sql.NullTime `db:"created_at"`
}

func (r observationRow) unpack() project.Observation {
	return project.Observation{
		ID:         r.ID,
		ProjectID:  r.ProjectID,
		DirectorID: r.DirectorID,
		Comment:    r.Comment,
		IsResolved: r.IsResolved,
		CreatedAt:  r.CreatedAt.Time,
	}
}

type projectRepository struct {
	db *sqlx.DB
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *sqlx.DB) *projectRepository {
	return &projectRepository{db: db}
}

func (repo projectRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return project.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo projectRepository) CreateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO project (id, student_id, advisor_id, title, faculty, budget, start_date, end_date,
		                     status, phase, risk_level, turnitin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		prj.ID, prj.StudentID, prj.AdvisorID, prj.Title, prj.Faculty, prj.Budget, prj.StartDate, prj.EndDate,
		prj.Status, prj.Phase, prj.RiskLevel, prj.Similarity, prj.CreatedAt, prj.UpdatedAt,
	)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "inserting project")
	}
	return repo.GetProject(ctx, project.GetFilter{ID: prj.ID})
}

func (repo projectRepository) GetProject(ctx context.Context, filter project.GetFilter) (project.Project, error) {
	var row projectRow
	var err error

	switch {
	case filter.ID != "":
		err = repo.db.GetContext(ctx, &row, projectSelect+" WHERE p.id = $1", filter.ID)
	case filter.StudentID != "":
		err = repo.db.GetContext(ctx, &row, projectSelect+" WHERE p.student_id = $1", filter.StudentID)
	default:
		return project.Project{}, project.ErrNotFound
	}
	if err != nil {
		return project.Project{}, repo.trapNoRowsErr(err, "finding project")
	}
	return row.unpack(), nil
}

func (repo projectRepository) QueryProjects(ctx context.Context, filter *project.QueryFilter, ordering []core.DBOrdering) ([]project.Project, error) {
	query := projectSelect
	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.AdvisorID != "" {
			clauses = append(clauses, "p.advisor_id = "+arg(filter.AdvisorID))
		}
		if filter.StudentID != "" {
			clauses = append(clauses, "p.student_id = "+arg(filter.StudentID))
		}
		if filter.Status != "" {
			clauses = append(clauses, "p.status = "+arg(filter.Status))
		}
		if filter.RiskLevel != "" {
			clauses = append(clauses, "p.risk_level = "+arg(filter.RiskLevel))
		}
		if filter.Faculty != "" {
			clauses = append(clauses, "p.faculty = "+arg(filter.Faculty))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += orderingClause(prefixOrdering("p.", ordering), "p.created_at ASC")

	var rows []projectRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying projects")
	}
	projects := make([]project.Project, 0, len(rows))
	for _, r := range rows {
		projects = append(projects, r.unpack())
	}
	return projects, nil
}

func (repo projectRepository) UpdateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	var sets []string
	var args []interface{}
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if prj.Title != "" {
		set("title", prj.Title)
	}
	if prj.Faculty != "" {
		set("faculty", prj.Faculty)
	}
	if prj.AdvisorID != "" {
		set("advisor_id", prj.AdvisorID)
	}
	if prj.Budget != 0 {
		set("budget", prj.Budget)
	}
	if !prj.EndDate.IsZero() {
		set("end_date", prj.EndDate)
	}
	if prj.RiskLevel != "" {
		set("risk_level", prj.RiskLevel)
	}
	if prj.Similarity != 0 {
		set("turnitin", prj.Similarity)
	}
	if !prj.UpdatedAt.IsZero() {
		set("updated_at", prj.UpdatedAt.UTC())
	}
	if len(sets) == 0 {
		return repo.GetProject(ctx, project.GetFilter{ID: prj.ID})
	}

	args = append(args, prj.ID)
	query := "UPDATE project SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "updating project")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return project.Project{}, project.ErrNotFound
	}
	return repo.GetProject(ctx, project.GetFilter{ID: prj.ID})
}

func (repo projectRepository) ApplyTransition(ctx context.Context, projectID string, from project.Snapshot, to project.Transition) (project.Project, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE project SET status = $1, phase = $2, risk_level = $3, updated_at = now()
		WHERE id = $4 AND status = $5 AND phase = $6`,
		to.Status, to.Phase, to.RiskLevel, projectID, from.Status, from.Phase,
	)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "applying project transition")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// either the project is gone, or its state moved under us
		if _, err := repo.GetProject(ctx, project.GetFilter{ID: projectID}); err != nil {
			return project.Project{}, err
		}
		return project.Project{}, project.ErrTransitionConflict
	}
	return repo.GetProject(ctx, project.GetFilter{ID: projectID})
}

func (repo projectRepository) ObserveProject(ctx context.Context, obs project.Observation, from project.Snapshot, to project.Transition) (project.Project, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "beginning observe transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO observation (id, project_id, director_id, comment, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		obs.ID, obs.ProjectID, obs.DirectorID, obs.Comment, obs.IsResolved, obs.CreatedAt,
	); err != nil {
		return project.Project{}, errors.Wrap(err, "inserting observation")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE project SET status = $1, phase = $2, risk_level = $3, updated_at = now()
		WHERE id = $4 AND status = $5 AND phase = $6`,
		to.Status, to.Phase, to.RiskLevel, obs.ProjectID, from.Status, from.Phase,
	)
	if err != nil {
		return project.Project{}, errors.Wrap(err, "applying observed transition")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return project.Project{}, project.ErrTransitionConflict
	}

	if err = tx.Commit(); err != nil {
		return project.Project{}, errors.Wrap(err, "committing observe transaction")
	}
	return repo.GetProject(ctx, project.GetFilter{ID: obs.ProjectID})
}

func (repo projectRepository) QueryObservations(ctx context.Context, projectID string) ([]project.Observation, error) {
	var rows []observationRow
	err := repo.db.SelectContext(ctx, &rows,
		"SELECT * FROM observation WHERE project_id = $1 ORDER BY created_at ASC", projectID)
	if err != nil {
		return nil, errors.Wrap(err, "querying observations")
	}
	observations := make([]project.Observation, 0, len(rows))
	for _, r := range rows {
		observations = append(observations, r.unpack())
	}
	return observations, nil
}

func (repo projectRepository) ResolveObservation(ctx context.Context, observationID string) (project.Observation, error) {
	res, err := repo.db.ExecContext(ctx,
		"UPDATE observation SET is_resolved = TRUE WHERE id = $1", observationID)
	if err != nil {
		return project.Observation{}, errors.Wrap(err, "resolving observation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return project.Observation{}, project.ErrObservationNotFound
	}

	var row observationRow
	if err = repo.db.GetContext(ctx, &row, "SELECT * FROM observation WHERE id = $1", observationID); err != nil {
		return project.Observation{}, errors.Wrap(err, "finding observation")
	}
	return row.unpack(), nil
}

func (repo projectRepository) GetStats(ctx context.Context) (project.Stats, error) {
	var stats project.Stats
	err := repo.db.GetContext(ctx, &stats, `
		SELECT count(*)                                           AS total,
		       count(*) FILTER (WHERE status = 'En Ejecución')    AS active,
		       count(*) FILTER (WHERE status = 'Pendiente')       AS pending,
		       count(*) FILTER (WHERE risk_level = 'Alto')        AS highrisk
		FROM project`)
	if err != nil {
		return project.Stats{}, errors.Wrap(err, "querying project stats")
	}
	return stats, nil
}

// prefixOrdering qualifies bare ordering fields with the given table alias.
func prefixOrdering(prefix string, ordering []core.DBOrdering) []core.DBOrdering {
	if len(ordering) == 0 {
		return nil
	}
	prefixed := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if !strings.Contains(ord.Field, ".") {
			ord.Field = prefix + ord.Field
		}
		prefixed = append(prefixed, ord)
	}
	return prefixed
}
