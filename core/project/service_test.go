package project

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/audit"
)

// recorder implements Repository and audit.Repository around in-memory state.
type recorder struct {
	projects     map[string]*Project
	observations []Observation
	events       []audit.Event
	failAudit    error
}

func newRecorder() *recorder {
	return &recorder{projects: make(map[string]*Project)}
}

func (r *recorder) CreateProject(ctx context.Context, prj Project) (Project, error) {
	r.projects[prj.ID] = &prj
	return prj, nil
}

func (r *recorder) GetProject(ctx context.Context, filter GetFilter) (Project, error) {
	if filter.ID != "" {
		if prj, ok := r.projects[filter.ID]; ok {
			return *prj, nil
		}
		return Project{}, ErrNotFound
	}
	for _, prj := range r.projects {
		if filter.StudentID != "" && prj.StudentID == filter.StudentID {
			return *prj, nil
		}
	}
	return Project{}, ErrNotFound
}

func (r *recorder) QueryProjects(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Project, error) {
	var out []Project
	for _, prj := range r.projects {
		out = append(out, *prj)
	}
	return out, nil
}

func (r *recorder) UpdateProject(ctx context.Context, prj Project) (Project, error) {
	orig, ok := r.projects[prj.ID]
	if !ok {
		return Project{}, ErrNotFound
	}
	if prj.Title != "" {
		orig.Title = prj.Title
	}
	if prj.RiskLevel != "" {
		orig.RiskLevel = prj.RiskLevel
	}
	if prj.Similarity != 0 {
		orig.Similarity = prj.Similarity
	}
	return *orig, nil
}

func (r *recorder) ApplyTransition(ctx context.Context, projectID string, from Snapshot, to Transition) (Project, error) {
	prj, ok := r.projects[projectID]
	if !ok {
		return Project{}, ErrNotFound
	}
	if prj.Status != from.Status || prj.Phase != from.Phase {
		return Project{}, ErrTransitionConflict
	}
	prj.Status = to.Status
	prj.Phase = to.Phase
	prj.RiskLevel = to.RiskLevel
	return *prj, nil
}

func (r *recorder) ObserveProject(ctx context.Context, obs Observation, from Snapshot, to Transition) (Project, error) {
	prj, err := r.ApplyTransition(ctx, obs.ProjectID, from, to)
	if err != nil {
		return Project{}, err
	}
	r.observations = append(r.observations, obs)
	return prj, nil
}

func (r *recorder) QueryObservations(ctx context.Context, projectID string) ([]Observation, error) {
	var out []Observation
	for _, obs := range r.observations {
		if obs.ProjectID == projectID {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (r *recorder) ResolveObservation(ctx context.Context, observationID string) (Observation, error) {
	for i := range r.observations {
		if r.observations[i].ID == observationID {
			r.observations[i].IsResolved = true
			return r.observations[i], nil
		}
	}
	return Observation{}, ErrObservationNotFound
}

func (r *recorder) GetStats(ctx context.Context) (Stats, error) { return Stats{}, nil }

func (r *recorder) AppendEvent(ctx context.Context, evt audit.Event) error {
	if r.failAudit != nil {
		return r.failAudit
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) QueryEvents(ctx context.Context, filter *audit.QueryFilter, ordering []core.DBOrdering) ([]audit.Event, error) {
	return r.events, nil
}

type nopLogger struct{ errCount int }

func (l *nopLogger) Enable(bool)                        {}
func (l *nopLogger) Debug(string, ...interface{})       {}
func (l *nopLogger) Info(string, ...interface{})        {}
func (l *nopLogger) Warn(string, ...interface{})        {}
func (l *nopLogger) Error(string, ...interface{})       { l.errCount++ }
func (l *nopLogger) Fatal(msg string, _ ...interface{}) { panic(msg) }

func setup() (*service, *recorder, *nopLogger) {
	rec := newRecorder()
	logger := &nopLogger{}
	return NewService(rec, audit.NewService(rec, logger)), rec, logger
}

func seedProject(rec *recorder, status Status, phase Phase) Project {
	prj := Project{
		ID:          uuid.New().String(),
		StudentID:   uuid.New().String(),
		AdvisorID:   uuid.New().String(),
		Title:       "Optimización de redes LoRa en zonas altoandinas",
		Faculty:     "FIMEES",
		StartDate:   time.Now().AddDate(0, -6, 0),
		EndDate:     time.Now().AddDate(0, 6, 0),
		Status:      status,
		Phase:       phase,
		RiskLevel:   RiskLow,
		StudentName: "Rosa Mamani",
	}
	rec.projects[prj.ID] = &prj
	return prj
}

func Test_service_Create_defaults(t *testing.T) {
	svc, _, _ := setup()

	prj, err := svc.Create(context.Background(), NewProject{
		StudentID: "s1",
		AdvisorID: "a1",
		Title:     "Tesis",
		Faculty:   "FIMEES",
		StartDate: "2026-01-15",
		EndDate:   "2026-12-15",
	})
	if err != nil {
		t.Fatalf("Create() failed, %v", err)
	}
	if prj.Status != StatusPending {
		t.Errorf("Create() status = %s, want %s", prj.Status, StatusPending)
	}
	if prj.Phase != PhasePlan {
		t.Errorf("Create() phase = %d, want %d", prj.Phase, PhasePlan)
	}
	if prj.RiskLevel != RiskLow {
		t.Errorf("Create() riskLevel = %s, want %s", prj.RiskLevel, RiskLow)
	}
	if prj.EndDate.Format("2006-01-02") != "2026-12-15" {
		t.Errorf("Create() endDate = %v", prj.EndDate)
	}
}

func Test_service_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("advances one phase and resets risk", func(t *testing.T) {
		svc, rec, _ := setup()
		prj := seedProject(rec, StatusObserved, PhasePlan)
		rec.projects[prj.ID].RiskLevel = RiskHigh

		got, err := svc.Approve(ctx, "dir1", prj.ID)
		if err != nil {
			t.Fatalf("Approve() failed, %v", err)
		}
		if got.Status != StatusInExecution || got.Phase != PhaseExecution || got.RiskLevel != RiskLow {
			t.Errorf("Approve() = (%s, %d, %s), want (%s, %d, %s)",
				got.Status, got.Phase, got.RiskLevel, StatusInExecution, PhaseExecution, RiskLow)
		}
		if len(rec.events) != 1 || rec.events[0].Kind != audit.KindPhaseApprove {
			t.Errorf("Approve() audit events = %+v, want one %s", rec.events, audit.KindPhaseApprove)
		}
		if rec.events[0].UserID != "dir1" {
			t.Errorf("Approve() audit userID = %s, want dir1", rec.events[0].UserID)
		}
	})

	t.Run("finalizes at defense phase", func(t *testing.T) {
		svc, rec, _ := setup()
		prj := seedProject(rec, StatusInExecution, PhaseDefense)

		got, err := svc.Approve(ctx, "dir1", prj.ID)
		if err != nil {
			t.Fatalf("Approve() failed, %v", err)
		}
		if got.Status != StatusFinalized || got.Phase != PhaseDefense {
			t.Errorf("Approve() = (%s, %d), want (%s, %d)", got.Status, got.Phase, StatusFinalized, PhaseDefense)
		}
		if len(rec.events) != 1 || rec.events[0].Kind != audit.KindProjectFinalize {
			t.Errorf("Approve() audit events = %+v, want one %s", rec.events, audit.KindProjectFinalize)
		}
	})

	t.Run("walks the full pipeline", func(t *testing.T) {
		svc, rec, _ := setup()
		prj := seedProject(rec, StatusPending, PhasePlan)

		var got Project
		var err error
		for i := 0; i < 4; i++ {
			if got, err = svc.Approve(ctx, "dir1", prj.ID); err != nil {
				t.Fatalf("Approve() #%d failed, %v", i+1, err)
			}
		}
		if got.Status != StatusFinalized || got.Phase != PhaseDefense {
			t.Errorf("Approve()x4 = (%s, %d), want (%s, %d)", got.Status, got.Phase, StatusFinalized, PhaseDefense)
		}
	})

	t.Run("rejects a finalized project", func(t *testing.T) {
		svc, rec, _ := setup()
		prj := seedProject(rec, StatusFinalized, PhaseDefense)

		_, err := svc.Approve(ctx, "dir1", prj.ID)
		confErr, ok := err.(*core.StateConflictError)
		if !ok {
			t.Fatalf("Approve() error = %v, want *core.StateConflictError", err)
		}
		if confErr.Err != ErrAlreadyFinalized {
			t.Errorf("Approve() cause = %v, want %v", confErr.Err, ErrAlreadyFinalized)
		}
		if len(rec.events) != 0 {
			t.Errorf("Approve() logged audit events on rejection: %+v", rec.events)
		}
		if got := rec.projects[prj.ID]; got.Status != StatusFinalized || got.Phase != PhaseDefense {
			t.Error("Approve() mutated a finalized project")
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		svc, _, _ := setup()
		if _, err := svc.Approve(ctx, "dir1", "nope"); err != ErrNotFound {
			t.Errorf("Approve() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("concurrent modification surfaces conflict", func(t *testing.T) {
		_, rec, _ := setup()
		prj := seedProject(rec, StatusPending, PhasePlan)
		// another transaction moved the project after our read; the stale
		// snapshot must not win the compare-and-set
		rec.projects[prj.ID].Status = StatusObserved

		_, err := rec.ApplyTransition(ctx, prj.ID, Snapshot{Status: StatusPending, Phase: PhasePlan},
			Transition{Status: StatusInExecution, Phase: PhaseExecution, RiskLevel: RiskLow})
		if err != ErrTransitionConflict {
			t.Errorf("ApplyTransition() error = %v, want %v", err, ErrTransitionConflict)
		}
	})
}

func Test_service_Observe(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a reason", func(t *testing.T) {
		svc, rec, _ := setup()
		prj := seedProject(rec, StatusInExecution, PhaseExecution)

		for _, reason := range []string{"", "   ", "\t\n"} {
			_, err := svc.Observe(ctx, "dir1", prj.ID, reason)
			vErr, ok := err.(*core.ValidationError)
			if !ok {
				t.Fatalf("Observe(%q) error = %v, want *core.ValidationError", reason, err)
			}
			if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "reason" {
				t.Errorf("Observe(%q) fields = %+v, want reason", reason, vErr.Fields)
			}
		}
		if len(rec.observations) != 0 {
			t.Error("Observe() recorded an observation despite validation failure")
		}
		if got := rec.projects[prj.ID]; got.Status != StatusInExecution {
			t.Error("Observe() mutated the project despite validation failure")
		}
	})

	t.Run("flags the project and records the objection", func(t *testing.T) {
		svc, rec, _ := setup()
		prj := seedProject(rec, StatusInExecution, PhaseDraft)

		got, err := svc.Observe(ctx, "dir1", prj.ID, "  El marco teórico está incompleto.  ")
		if err != nil {
			t.Fatalf("Observe() failed, %v", err)
		}
		if got.Status != StatusObserved {
			t.Errorf("Observe() status = %s, want %s", got.Status, StatusObserved)
		}
		if got.Phase != PhaseDraft {
			t.Errorf("Observe() phase = %d, want unchanged %d", got.Phase, PhaseDraft)
		}
		if got.RiskLevel != RiskHigh {
			t.Errorf("Observe() riskLevel = %s, want %s", got.RiskLevel, RiskHigh)
		}

		if len(rec.observations) != 1 {
			t.Fatalf("Observe() observations = %d, want 1", len(rec.observations))
		}
		obs := rec.observations[0]
		if obs.Comment != "El marco teórico está incompleto." {
			t.Errorf("Observe() comment = %q", obs.Comment)
		}
		if obs.DirectorID != "dir1" || obs.ProjectID != prj.ID || obs.IsResolved {
			t.Errorf("Observe() observation = %+v", obs)
		}

		if len(rec.events) != 1 || rec.events[0].Kind != audit.KindObservationCreate {
			t.Errorf("Observe() audit events = %+v, want one %s", rec.events, audit.KindObservationCreate)
		}
	})

	t.Run("unknown project", func(t *testing.T) {
		svc, _, _ := setup()
		if _, err := svc.Observe(ctx, "dir1", "nope", "motivo"); err != ErrNotFound {
			t.Errorf("Observe() error = %v, want %v", err, ErrNotFound)
		}
	})
}

func Test_service_Observe_auditFailureIsNonFatal(t *testing.T) {
	svc, rec, logger := setup()
	rec.failAudit = context.DeadlineExceeded
	prj := seedProject(rec, StatusInExecution, PhaseExecution)

	got, err := svc.Observe(context.Background(), "dir1", prj.ID, "motivo")
	if err != nil {
		t.Fatalf("Observe() failed, %v", err)
	}
	if got.Status != StatusObserved {
		t.Errorf("Observe() status = %s, want %s", got.Status, StatusObserved)
	}
	if logger.errCount == 0 {
		t.Error("Observe() did not report the failed audit write")
	}
}

func Test_service_ResolveObservation(t *testing.T) {
	svc, rec, _ := setup()
	ctx := context.Background()
	prj := seedProject(rec, StatusInExecution, PhaseExecution)

	if _, err := svc.Observe(ctx, "dir1", prj.ID, "Corregir citas"); err != nil {
		t.Fatalf("Observe() failed, %v", err)
	}
	obs := rec.observations[0]

	resolved, err := svc.ResolveObservation(ctx, obs.ID)
	if err != nil {
		t.Fatalf("ResolveObservation() failed, %v", err)
	}
	if !resolved.IsResolved {
		t.Error("ResolveObservation() did not mark the observation resolved")
	}

	if _, err := svc.ResolveObservation(ctx, "nope"); err != ErrObservationNotFound {
		t.Errorf("ResolveObservation() error = %v, want %v", err, ErrObservationNotFound)
	}
}
