package project

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/unapuno/tesis/core"
)

// Status is the coarse project state. Values are stored as-is (Spanish),
// matching the hosted database rows.
type Status string

const (
	StatusPending     Status = "Pendiente"
	StatusInExecution Status = "En Ejecución"
	StatusObserved    Status = "Observado"
	StatusFinalized   Status = "Finalizado"
)

// RiskLevel is the coarse severity flag used by humans and the alert engine.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Bajo"
	RiskMedium RiskLevel = "Medio"
	RiskHigh   RiskLevel = "Alto"
)

// Phase is the ordinal position of a project along the fixed pipeline
// Plan de Tesis -> Ejecución -> Borrador Final -> Sustentación.
type Phase int

const (
	PhasePlan      Phase = 1
	PhaseExecution Phase = 2
	PhaseDraft     Phase = 3
	PhaseDefense   Phase = 4
)

var phaseLabels = map[Phase]string{
	PhasePlan:      "Plan de Tesis",
	PhaseExecution: "Ejecución",
	PhaseDraft:     "Borrador Final",
	PhaseDefense:   "Sustentación",
}

func (p Phase) Label() string { return phaseLabels[p] }

func (p Phase) IsValid() bool { return p >= PhasePlan && p <= PhaseDefense }

type Project struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	AdvisorID  string    `json:"advisor_id"`
	Title      string    `json:"title"`
	Faculty    string    `json:"faculty"`
	Budget     float64   `json:"budget"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Status     Status    `json:"status"`
	Phase      Phase     `json:"phase"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Similarity int       `json:"turnitin"`   // plagiarism similarity %, 0-100
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC

	// joined student info
	StudentName  string `json:"student_name,omitempty"`
	StudentEmail string `json:"student_email,omitempty"`
}

func (p *Project) IsFinalized() bool { return p.Status == StatusFinalized }

// Snapshot captures the fields a transition compares-and-swaps on.
type Snapshot struct {
	Status Status
	Phase  Phase
}

// Transition is the target state of an Approve/Observe move.
type Transition struct {
	Status    Status
	Phase     Phase
	RiskLevel RiskLevel
}

// Observation is a director's recorded objection on a project.
type Observation struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	DirectorID string    `json:"director_id"`
	Comment    string    `json:"comment"`
	IsResolved bool      `json:"is_resolved"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// NewProject contains information needed to register a new Project.
type NewProject struct {
	StudentID string  `json:"student_id" validate:"required"`
	AdvisorID string  `json:"advisor_id" validate:"required"`
	Title     string  `json:"title" validate:"required"`
	Faculty   string  `json:"faculty" validate:"required"`
	Budget    float64 `json:"budget" validate:"gte=0"`
	StartDate string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string  `json:"end_date" validate:"required,datetime=2006-01-02"`
}

func (np *NewProject) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Faculty = core.CleanString(np.Faculty)
	if err := validate.Struct(np); err != nil {
		return err
	}
	start, _ := time.Parse("2006-01-02", np.StartDate)
	end, _ := time.Parse("2006-01-02", np.EndDate)
	if !end.After(start) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_date", Error: "end date must be after start date"})
	}
	return nil
}

// UpdateProject defines what the research office may modify on an existing Project.
type UpdateProject struct {
	Title      string    `json:"title"`
	Faculty    string    `json:"faculty"`
	Budget     *float64  `json:"budget" validate:"omitempty,gte=0"`
	AdvisorID  string    `json:"advisor_id"`
	EndDate    string    `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	RiskLevel  RiskLevel `json:"risk_level" validate:"omitempty,oneof=Bajo Medio Alto"`
	Similarity *int      `json:"turnitin" validate:"omitempty,gte=0,lte=100"`
}

func (up *UpdateProject) Validate(validate *validator.Validate) error {
	up.Title = core.CleanString(up.Title)
	up.Faculty = core.CleanString(up.Faculty)
	return validate.Struct(up)
}

type QueryFilter struct {
	AdvisorID string    `query:"advisor_id"`
	StudentID string    `query:"student_id"`
	Status    Status    `query:"status"`
	RiskLevel RiskLevel `query:"risk_level"`
	Faculty   string    `query:"faculty"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.AdvisorID == "" && qf.StudentID == "" && qf.Status == "" && qf.RiskLevel == "" && qf.Faculty == ""
}

// GetFilter selects a single Project; fields are tried in order.
type GetFilter struct {
	ID        string
	StudentID string
}

// Stats are the research office dashboard counters.
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Pending  int `json:"pending"`
	HighRisk int `json:"risk"`
}
