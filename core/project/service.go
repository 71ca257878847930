package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/audit"
)

var (
	// errors
	ErrNotFound            = errors.New("project not found")
	ErrAlreadyFinalized    = errors.New("this project has already concluded")
	ErrEmptyReason         = errors.New("an observation reason is required")
	ErrObservationNotFound = errors.New("observation not found")
	// ErrTransitionConflict is returned by repositories when the
	// compare-and-set of a transition matches no row, ie. the project was
	// modified concurrently. Callers may reload and retry.
	ErrTransitionConflict = errors.New("project state changed concurrently")
)

type (
	Repository interface {
		CreateProject(ctx context.Context, prj Project) (Project, error)
		GetProject(ctx context.Context, filter GetFilter) (Project, error)
		// QueryProjects applies AND on set QueryFilter fields and joins the
		// student's name and email onto each row.
		QueryProjects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error)
		// UpdateProject only writes set fields.
		UpdateProject(ctx context.Context, prj Project) (Project, error)
		// ApplyTransition compare-and-sets the project's (status, phase)
		// against `from` and writes `to` atomically; it returns
		// ErrTransitionConflict when the snapshot no longer matches.
		ApplyTransition(ctx context.Context, projectID string, from Snapshot, to Transition) (Project, error)
		// ObserveProject inserts the observation and applies the transition
		// in a single transaction.
		ObserveProject(ctx context.Context, obs Observation, from Snapshot, to Transition) (Project, error)
		QueryObservations(ctx context.Context, projectID string) ([]Observation, error)
		ResolveObservation(ctx context.Context, observationID string) (Observation, error)
		GetStats(ctx context.Context) (Stats, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, np NewProject) (Project, error)
		GetByID(ctx context.Context, id string) (Project, error)
		GetByStudent(ctx context.Context, studentID string) (Project, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error)
		Update(ctx context.Context, id string, up UpdateProject) (Project, error)
		Approve(ctx context.Context, directorID, projectID string) (Project, error)
		Observe(ctx context.Context, directorID, projectID, reason string) (Project, error)
		Observations(ctx context.Context, projectID string) ([]Observation, error)
		ResolveObservation(ctx context.Context, observationID string) (Observation, error)
		Stats(ctx context.Context) (Stats, error)
	}

	service struct {
		repo     Repository
		auditSvc audit.ServiceInterface
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository, auditSvc audit.ServiceInterface) *service {
	return &service{repo: repo, auditSvc: auditSvc}
}

func (svc *service) Create(ctx context.Context, np NewProject) (Project, error) {
	now := time.Now().UTC()
	start, _ := time.Parse("2006-01-02", np.StartDate)
	end, _ := time.Parse("2006-01-02", np.EndDate)
	prj := Project{
		ID:        uuid.New().String(),
		StudentID: np.StudentID,
		AdvisorID: np.AdvisorID,
		Title:     np.Title,
		Faculty:   np.Faculty,
		Budget:    np.Budget,
		StartDate: start,
		EndDate:   end,
		Status:    StatusPending,
		Phase:     PhasePlan,
		RiskLevel: RiskLow,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateProject(ctx, prj)
}

func (svc *service) GetByID(ctx context.Context, id string) (Project, error) {
	return svc.repo.GetProject(ctx, GetFilter{ID: id})
}

func (svc *service) GetByStudent(ctx context.Context, studentID string) (Project, error) {
	return svc.repo.GetProject(ctx, GetFilter{StudentID: studentID})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error) {
	return svc.repo.QueryProjects(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, up UpdateProject) (Project, error) {
	prj := Project{
		ID:        id,
		Title:     up.Title,
		Faculty:   up.Faculty,
		AdvisorID: up.AdvisorID,
		RiskLevel: up.RiskLevel,
		UpdatedAt: time.Now().UTC(),
	}
	if up.Budget != nil {
		prj.Budget = *up.Budget
	}
	if up.Similarity != nil {
		prj.Similarity = *up.Similarity
	}
	if up.EndDate != "" {
		end, _ := time.Parse("2006-01-02", up.EndDate)
		prj.EndDate = end
	}
	return svc.repo.UpdateProject(ctx, prj)
}

// Approve advances the project one phase, or finalizes it when it is already
// at the defense phase. Phase never goes past PhaseDefense and a finalized
// project rejects any further approval.
func (svc *service) Approve(ctx context.Context, directorID, projectID string) (Project, error) {
	prj, err := svc.repo.GetProject(ctx, GetFilter{ID: projectID})
	if err != nil {
		return Project{}, err
	}
	if prj.IsFinalized() {
		return Project{}, core.NewStateConflictError(ErrAlreadyFinalized)
	}

	var to Transition
	var kind audit.Kind
	var details string
	if prj.Phase == PhaseDefense {
		to = Transition{Status: StatusFinalized, Phase: PhaseDefense, RiskLevel: RiskLow}
		kind = audit.KindProjectFinalize
		details = fmt.Sprintf("Finalizó proyecto de %s (Sustentación)", prj.StudentName)
	} else {
		to = Transition{Status: StatusInExecution, Phase: prj.Phase + 1, RiskLevel: RiskLow}
		kind = audit.KindPhaseApprove
		details = fmt.Sprintf("Aprobó avance a Fase %d para %s", to.Phase, prj.StudentName)
	}

	updated, err := svc.repo.ApplyTransition(ctx, prj.ID, Snapshot{Status: prj.Status, Phase: prj.Phase}, to)
	if err != nil {
		return Project{}, err
	}

	svc.auditSvc.Log(ctx, directorID, kind, details, "")
	return updated, nil
}

// Observe records the director's objection and flags the project as observed
// with high risk; the phase is left untouched.
func (svc *service) Observe(ctx context.Context, directorID, projectID, reason string) (Project, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		return Project{}, core.NewValidationError(ErrEmptyReason, core.FieldError{Field: "reason", Error: ErrEmptyReason.Error()})
	}

	prj, err := svc.repo.GetProject(ctx, GetFilter{ID: projectID})
	if err != nil {
		return Project{}, err
	}

	obs := Observation{
		ID:         uuid.New().String(),
		ProjectID:  prj.ID,
		DirectorID: directorID,
		Comment:    reason,
		IsResolved: false,
		CreatedAt:  time.Now().UTC(),
	}
	to := Transition{Status: StatusObserved, Phase: prj.Phase, RiskLevel: RiskHigh}

	updated, err := svc.repo.ObserveProject(ctx, obs, Snapshot{Status: prj.Status, Phase: prj.Phase}, to)
	if err != nil {
		return Project{}, err
	}

	svc.auditSvc.Log(ctx, directorID, audit.KindObservationCreate,
		fmt.Sprintf("Registró observación para proyecto ID %s", prj.ID), "")
	return updated, nil
}

func (svc *service) Observations(ctx context.Context, projectID string) ([]Observation, error) {
	return svc.repo.QueryObservations(ctx, projectID)
}

func (svc *service) ResolveObservation(ctx context.Context, observationID string) (Observation, error) {
	return svc.repo.ResolveObservation(ctx, observationID)
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	return svc.repo.GetStats(ctx)
}
