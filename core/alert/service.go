package alert

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"time"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/audit"
	"github.com/unapuno/tesis/core/project"
)

const warnWindowDays = 15

type (
	// Repository persists per-viewer alert dismissals. Inserts are
	// idempotent: dismissing the same id twice is a no-op, and ids are
	// opaque (never checked against current projects).
	Repository interface {
		ListDismissedAlertIDs(ctx context.Context, userID string) (map[string]struct{}, error)
		InsertDismissedAlert(ctx context.Context, userID, alertID string) error
	}

	// ProjectRepository is the slice of the project store the engine reads.
	ProjectRepository interface {
		QueryProjects(ctx context.Context, filter *project.QueryFilter, ordering []core.DBOrdering) ([]project.Project, error)
	}

	ServiceInterface interface {
		Derive(ctx context.Context, viewerID string) ([]Alert, error)
		Dismiss(ctx context.Context, viewerID, alertID string) error
		Contact(ctx context.Context, directorID string, cs ContactStudent) error
	}

	service struct {
		repo     Repository
		projRepo ProjectRepository
		auditSvc audit.ServiceInterface
		mailSvc  core.EmailService
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository, projRepo ProjectRepository, auditSvc audit.ServiceInterface, mailSvc core.EmailService) *service {
	return &service{repo: repo, projRepo: projRepo, auditSvc: auditSvc, mailSvc: mailSvc}
}

// Derive recomputes the viewer's live alerts: every rule is evaluated over
// the viewer's project portfolio, then previously dismissed ids are dropped.
func (svc *service) Derive(ctx context.Context, viewerID string) ([]Alert, error) {
	projects, err := svc.projRepo.QueryProjects(ctx,
		&project.QueryFilter{AdvisorID: viewerID},
		[]core.DBOrdering{{Field: "created_at", Ascending: true}},
	)
	if err != nil {
		return nil, err
	}
	dismissed, err := svc.repo.ListDismissedAlertIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return Generate(projects, dismissed, time.Now()), nil
}

// Dismiss suppresses the alert id for the viewer permanently. Unknown ids are
// accepted: the store does not validate them against current projects.
func (svc *service) Dismiss(ctx context.Context, viewerID, alertID string) error {
	if err := svc.repo.InsertDismissedAlert(ctx, viewerID, alertID); err != nil {
		return err
	}
	svc.auditSvc.Log(ctx, viewerID, audit.KindAlertDismiss, fmt.Sprintf("Archivó alerta %s", alertID), "")
	return nil
}

// Contact emails the student referenced by an alert on the director's behalf.
func (svc *service) Contact(ctx context.Context, directorID string, cs ContactStudent) error {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: cs.StudentName, Address: cs.StudentEmail}},
		Subject: "Atención a alerta de su proyecto de tesis",
		BodyStr: cs.Message,
	})
	svc.auditSvc.Log(ctx, directorID, audit.KindAlertContact,
		fmt.Sprintf("Notificó a %s por alerta %s", cs.StudentEmail, cs.AlertID), "")
	return nil
}

// Generate evaluates the alert rules over the given projects and filters out
// the dismissed ids. It is pure: same inputs, same output, in project order
// then rule order. Alert ids are deterministic so a dismissal keeps holding
// across recomputations.
func Generate(projects []project.Project, dismissed map[string]struct{}, now time.Time) []Alert {
	alerts := make([]Alert, 0, len(projects))

	for _, p := range projects {
		studentName := p.StudentName
		if studentName == "" {
			studentName = "Estudiante"
		}

		daysRemaining := daysUntil(now, p.EndDate)

		// deadline overrun / deadline approaching (mutually exclusive)
		if daysRemaining < 0 && p.Status == project.StatusInExecution {
			alerts = append(alerts, Alert{
				ID:    tagTimeOver + p.ID,
				Type:  TypeDanger,
				Title: "Plazo Vencido",
				Message: fmt.Sprintf("El proyecto de %s venció hace %d días (%s) y sigue activo.",
					studentName, -daysRemaining, p.EndDate.Format("2006-01-02")),
				StudentName:  studentName,
				StudentEmail: p.StudentEmail,
			})
		} else if daysRemaining > 0 && daysRemaining <= warnWindowDays && p.Status == project.StatusInExecution {
			alerts = append(alerts, Alert{
				ID:    tagTimeWarn + p.ID,
				Type:  TypeWarning,
				Title: "Cierre Próximo",
				Message: fmt.Sprintf("Quedan solo %d días para finalizar el proyecto de %s.",
					daysRemaining, studentName),
				StudentName:  studentName,
				StudentEmail: p.StudentEmail,
			})
		}

		// high risk
		if p.RiskLevel == project.RiskHigh {
			alerts = append(alerts, Alert{
				ID:           tagRisk + p.ID,
				Type:         TypeDanger,
				Title:        "Riesgo Académico",
				Message:      fmt.Sprintf("El proyecto de %s está marcado con Riesgo ALTO.", studentName),
				StudentName:  studentName,
				StudentEmail: p.StudentEmail,
			})
		}

		// high similarity
		if p.Similarity > 20 {
			alerts = append(alerts, Alert{
				ID:           tagTurnitin + p.ID,
				Type:         TypeWarning,
				Title:        "Similitud Alta (Turnitin)",
				Message:      fmt.Sprintf("El informe de %s tiene %d%% de similitud.", studentName, p.Similarity),
				StudentName:  studentName,
				StudentEmail: p.StudentEmail,
			})
		}

		// observed
		if p.Status == project.StatusObserved {
			alerts = append(alerts, Alert{
				ID:           tagObserved + p.ID,
				Type:         TypeInfo,
				Title:        "Correcciones Pendientes",
				Message:      fmt.Sprintf("%s tiene observaciones sin resolver.", studentName),
				StudentName:  studentName,
				StudentEmail: p.StudentEmail,
			})
		}
	}

	if len(dismissed) == 0 {
		return alerts
	}
	visible := alerts[:0]
	for _, a := range alerts {
		if _, ok := dismissed[a.ID]; !ok {
			visible = append(visible, a)
		}
	}
	return visible
}

// daysUntil returns the whole-day distance from now to the deadline,
// rounded up; negative when the deadline has passed.
func daysUntil(now, deadline time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}
