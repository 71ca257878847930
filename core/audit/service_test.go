package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unapuno/tesis/core"
)

type fakeRepo struct {
	events    []Event
	failWrite error
}

func (r *fakeRepo) AppendEvent(ctx context.Context, evt Event) error {
	if r.failWrite != nil {
		return r.failWrite
	}
	r.events = append(r.events, evt)
	return nil
}

func (r *fakeRepo) QueryEvents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error) {
	var out []Event
	for _, evt := range r.events {
		if filter != nil && filter.Kind != "" && evt.Kind != filter.Kind {
			continue
		}
		if filter != nil && filter.UserID != "" && evt.UserID != filter.UserID {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

type spyLogger struct {
	errMsgs []string
}

func (l *spyLogger) Enable(bool)                        {}
func (l *spyLogger) Debug(string, ...interface{})       {}
func (l *spyLogger) Info(string, ...interface{})        {}
func (l *spyLogger) Warn(string, ...interface{})        {}
func (l *spyLogger) Error(msg string, _ ...interface{}) { l.errMsgs = append(l.errMsgs, msg) }
func (l *spyLogger) Fatal(msg string, _ ...interface{}) { panic(msg) }

func Test_service_Log(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, &spyLogger{})
	ctx := context.Background()

	before := time.Now().UTC()
	svc.Log(ctx, "u1", KindPhaseApprove, "Aprobó avance a Fase 2 para Rosa", "10.0.0.7")

	if len(repo.events) != 1 {
		t.Fatalf("Log() events = %d, want 1", len(repo.events))
	}
	evt := repo.events[0]
	if evt.ID == "" {
		t.Error("Log() did not assign an event id")
	}
	if evt.Kind != KindPhaseApprove {
		t.Errorf("Log() kind = %s, want %s", evt.Kind, KindPhaseApprove)
	}
	if evt.UserID != "u1" || evt.IPAddress != "10.0.0.7" {
		t.Errorf("Log() event = %+v", evt)
	}
	if evt.CreatedAt.Before(before) {
		t.Errorf("Log() createdAt = %v, want >= %v", evt.CreatedAt, before)
	}
}

func Test_service_Log_failureIsSwallowed(t *testing.T) {
	repo := &fakeRepo{failWrite: errors.New("connection refused")}
	logger := &spyLogger{}
	svc := NewService(repo, logger)

	// must not panic nor return anything
	svc.Log(context.Background(), "u1", KindLogin, "Inició sesión", "")

	if len(repo.events) != 0 {
		t.Errorf("Log() stored %d events despite write failure", len(repo.events))
	}
	if len(logger.errMsgs) != 1 {
		t.Fatalf("Log() logged %d errors, want 1", len(logger.errMsgs))
	}
}

func Test_service_Query(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, &spyLogger{})
	ctx := context.Background()

	svc.Log(ctx, "u1", KindLogin, "Inició sesión", "")
	svc.Log(ctx, "u1", KindPhaseApprove, "Aprobó avance", "")
	svc.Log(ctx, "u2", KindAlertDismiss, "Archivó alerta risk-p1", "")

	events, err := svc.Query(ctx, &QueryFilter{Kind: KindPhaseApprove}, nil)
	if err != nil {
		t.Fatalf("Query() failed, %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindPhaseApprove {
		t.Errorf("Query() = %+v, want one %s event", events, KindPhaseApprove)
	}

	events, err = svc.Query(ctx, &QueryFilter{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("Query() failed, %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Query() = %d events, want 2", len(events))
	}
}

func TestKind_IsValid(t *testing.T) {
	for _, k := range Kinds {
		if !k.IsValid() {
			t.Errorf("Kind(%s).IsValid() = false", k)
		}
	}
	if Kind("PHASE_SKIP").IsValid() {
		t.Error("unknown kind reported valid")
	}
}
