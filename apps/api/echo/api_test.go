package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/alert"
	"github.com/unapuno/tesis/core/audit"
	"github.com/unapuno/tesis/core/project"
	"github.com/unapuno/tesis/core/user"
	emailsvc "github.com/unapuno/tesis/services/email"
	dummydb "github.com/unapuno/tesis/storage/database/dummy"
)

// auditStore is the dummy audit repo's test surface.
type auditStore interface {
	audit.Repository
	Events() []audit.Event
	FailWith(err error)
}

type testEnv struct {
	server    Server
	usrRepo   user.Repository
	projRepo  project.Repository
	auditRepo auditStore
	usrSvc    user.ServiceInterface
	projSvc   project.ServiceInterface
}

type testLogger struct{}

func (testLogger) Enable(bool)                  {}
func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := &core.Config{
		AppName:   "Tesis",
		SecretKey: "test-secret",
		TestMode:  true,
		Server: core.ServerConfig{
			JWTExpirationDelta:        1 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}

	db, err := dummydb.Open()
	require.NoError(t, err)

	usrRepo := dummydb.NewUserRepository(db)
	projRepo := dummydb.NewProjectRepository(db)
	alertRepo := dummydb.NewDismissedAlertRepository(db)
	auditRepo := dummydb.NewAuditRepository(db)

	logger := testLogger{}
	auditSvc := audit.NewService(auditRepo, logger)
	usrSvc := user.NewService(usrRepo)
	projSvc := project.NewService(projRepo, auditSvc)
	alertSvc := alert.NewService(alertRepo, projRepo, auditSvc, emailsvc.NewConsoleServiceMock(conf))

	validate, translator := core.NewValidator()

	server := NewServer(&Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        usrSvc,
		ProjectSvc:     projSvc,
		AlertSvc:       alertSvc,
		AuditSvc:       auditSvc,
	})

	return &testEnv{
		server:    server,
		usrRepo:   usrRepo,
		projRepo:  projRepo,
		auditRepo: auditRepo,
		usrSvc:    usrSvc,
		projSvc:   projSvc,
	}
}

func (env *testEnv) createUser(t *testing.T, name, uname, pwd string, roles []string) user.User {
	t.Helper()
	usr, err := env.usrSvc.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           uname + "@test.pe",
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
}

func (env *testEnv) createProject(t *testing.T, studentID, advisorID string, status project.Status, phase project.Phase) project.Project {
	t.Helper()
	prj, err := env.projSvc.Create(context.Background(), project.NewProject{
		StudentID: studentID,
		AdvisorID: advisorID,
		Title:     "Modelo predictivo de deserción",
		Faculty:   "FINESI",
		StartDate: "2026-01-15",
		EndDate:   "2026-12-15",
	})
	require.NoError(t, err)
	if status != project.StatusPending || phase != project.PhasePlan {
		// force the desired state directly through the repo CAS
		_, err = env.projRepo.ApplyTransition(context.Background(), prj.ID,
			project.Snapshot{Status: prj.Status, Phase: prj.Phase},
			project.Transition{Status: status, Phase: phase, RiskLevel: prj.RiskLevel})
		require.NoError(t, err)
		prj.Status = status
		prj.Phase = phase
	}
	return prj
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	require.NoError(t, err)
	return token
}

func doRequest(env *testEnv, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Director Uno", "diruno1", "s3cret", user.DirectorRoles)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
	}{
		{name: "valid credentials", body: echoMap{"username": "diruno1", "password": "s3cret"}, wantCode: http.StatusOK},
		{name: "bad password", body: echoMap{"username": "diruno1", "password": "nope"}, wantCode: http.StatusBadRequest},
		{name: "unknown user", body: echoMap{"username": "ghost1", "password": "nope"}, wantCode: http.StatusBadRequest},
		{name: "missing fields", body: echoMap{}, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(env, http.MethodPost, "/v1/users/login", "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCode == http.StatusOK {
				var res LoginResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
				assert.NotEmpty(t, res.Token)
			}
		})
	}
}

type echoMap = map[string]interface{}

func Test_projectApi_approve(t *testing.T) {
	env := setup(t)
	director := env.createUser(t, "Director", "diruno1", "pwd", user.DirectorRoles)
	student := env.createUser(t, "Rosa Mamani", "rosam1", "pwd", user.InvestigadorRoles)

	t.Run("auth required", func(t *testing.T) {
		rec := doRequest(env, http.MethodPost, "/v1/projects/x/approve", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("director required", func(t *testing.T) {
		prj := env.createProject(t, student.ID, director.ID, project.StatusPending, project.PhasePlan)
		rec := doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/approve", getToken(t, student), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("advances the phase", func(t *testing.T) {
		prj := env.createProject(t, student.ID, director.ID, project.StatusPending, project.PhasePlan)
		rec := doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/approve", getToken(t, director), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got project.Project
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, project.StatusInExecution, got.Status)
		assert.Equal(t, project.PhaseExecution, got.Phase)
	})

	t.Run("finalizes from defense and conflicts afterwards", func(t *testing.T) {
		prj := env.createProject(t, student.ID, director.ID, project.StatusInExecution, project.PhaseDefense)
		token := getToken(t, director)

		rec := doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/approve", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got project.Project
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, project.StatusFinalized, got.Status)

		rec = doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/approve", token, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"error": "this project has already concluded"}`, rec.Body.String())
	})

	t.Run("unknown project", func(t *testing.T) {
		rec := doRequest(env, http.MethodPost, "/v1/projects/nope/approve", getToken(t, director), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})
}

func Test_projectApi_approve_auditOutageIsNonFatal(t *testing.T) {
	env := setup(t)
	director := env.createUser(t, "Director", "diruno1", "pwd", user.DirectorRoles)
	student := env.createUser(t, "Rosa Mamani", "rosam1", "pwd", user.InvestigadorRoles)
	token := getToken(t, director)

	prj := env.createProject(t, student.ID, director.ID, project.StatusPending, project.PhasePlan)

	env.auditRepo.FailWith(errors.New("audit store down"))
	rec := doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/approve", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got project.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, project.StatusInExecution, got.Status)
	assert.Empty(t, env.auditRepo.Events())

	// once the store heals, approvals audit again
	env.auditRepo.FailWith(nil)
	rec = doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/approve", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	events := env.auditRepo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.KindPhaseApprove, events[0].Kind)
	assert.Equal(t, director.ID, events[0].UserID)
}

func Test_projectApi_observe(t *testing.T) {
	env := setup(t)
	director := env.createUser(t, "Director", "diruno1", "pwd", user.DirectorRoles)
	student := env.createUser(t, "Rosa Mamani", "rosam1", "pwd", user.InvestigadorRoles)
	token := getToken(t, director)

	t.Run("requires a reason", func(t *testing.T) {
		prj := env.createProject(t, student.ID, director.ID, project.StatusInExecution, project.PhaseExecution)
		rec := doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/observe", token, echoMap{"reason": "   "})
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"reason": "an observation reason is required"}`, rec.Body.String())
	})

	t.Run("flags the project", func(t *testing.T) {
		prj := env.createProject(t, student.ID, director.ID, project.StatusInExecution, project.PhaseDraft)
		rec := doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/observe", token,
			echoMap{"reason": "Revisar el capítulo de metodología"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got project.Project
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, project.StatusObserved, got.Status)
		assert.Equal(t, project.PhaseDraft, got.Phase)
		assert.Equal(t, project.RiskHigh, got.RiskLevel)

		rec = doRequest(env, http.MethodGet, "/v1/projects/"+prj.ID+"/observations", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var obs []project.Observation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obs))
		require.Len(t, obs, 1)
		assert.Equal(t, "Revisar el capítulo de metodología", obs[0].Comment)
		assert.False(t, obs[0].IsResolved)
	})
}

func Test_projectApi_queryScoping(t *testing.T) {
	env := setup(t)
	dir1 := env.createUser(t, "Director Uno", "diruno1", "pwd", user.DirectorRoles)
	dir2 := env.createUser(t, "Director Dos", "dirdos1", "pwd", user.DirectorRoles)
	oficina := env.createUser(t, "Oficina", "oficina1", "pwd", user.OficinaRoles)
	s1 := env.createUser(t, "Est Uno", "estuno1", "pwd", user.InvestigadorRoles)
	s2 := env.createUser(t, "Est Dos", "estdos1", "pwd", user.InvestigadorRoles)

	env.createProject(t, s1.ID, dir1.ID, project.StatusPending, project.PhasePlan)
	env.createProject(t, s2.ID, dir2.ID, project.StatusPending, project.PhasePlan)

	list := func(t *testing.T, usr user.User) []project.Project {
		rec := doRequest(env, http.MethodGet, "/v1/projects", getToken(t, usr), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var projects []project.Project
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
		return projects
	}

	// directors only see their own portfolio
	assert.Len(t, list(t, dir1), 1)
	assert.Len(t, list(t, dir2), 1)
	// the research office sees everything
	assert.Len(t, list(t, oficina), 2)

	// a student sees their own project under /mine
	rec := doRequest(env, http.MethodGet, "/v1/projects/mine", getToken(t, s1), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var mine project.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Equal(t, s1.ID, mine.StudentID)
}

func Test_alertApi_flow(t *testing.T) {
	env := setup(t)
	director := env.createUser(t, "Director", "diruno1", "pwd", user.DirectorRoles)
	student := env.createUser(t, "Rosa Mamani", "rosam1", "pwd", user.InvestigadorRoles)
	token := getToken(t, director)

	prj := env.createProject(t, student.ID, director.ID, project.StatusInExecution, project.PhaseExecution)
	// mark it high risk so the engine fires
	_, err := env.projSvc.Update(context.Background(), prj.ID, project.UpdateProject{RiskLevel: project.RiskHigh})
	require.NoError(t, err)

	list := func(t *testing.T) []alert.Alert {
		rec := doRequest(env, http.MethodGet, "/v1/alerts", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var alerts []alert.Alert
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
		return alerts
	}

	alerts := list(t)
	require.NotEmpty(t, alerts)
	var riskID string
	for _, a := range alerts {
		if a.Type == alert.TypeDanger {
			riskID = a.ID
		}
	}
	require.Equal(t, "risk-"+prj.ID, riskID)

	// dismiss is permanent and idempotent
	for i := 0; i < 2; i++ {
		rec := doRequest(env, http.MethodPost, "/v1/alerts/"+riskID+"/dismiss", token, nil)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}
	for _, a := range list(t) {
		assert.NotEqual(t, riskID, a.ID)
	}

	// students cannot read alerts
	rec := doRequest(env, http.MethodGet, "/v1/alerts", getToken(t, student), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// contact the student about an alert
	rec = doRequest(env, http.MethodPost, "/v1/alerts/contact", token, echoMap{
		"alert_id":      riskID,
		"student_name":  student.Name,
		"student_email": student.Email,
		"message":       "Por favor revise su cronograma.",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_auditApi_query(t *testing.T) {
	env := setup(t)
	soporte := env.createUser(t, "Soporte", "soporte1", "pwd", user.AllRoles)
	director := env.createUser(t, "Director", "diruno1", "pwd", user.DirectorRoles)
	student := env.createUser(t, "Rosa Mamani", "rosam1", "pwd", user.InvestigadorRoles)

	prj := env.createProject(t, student.ID, director.ID, project.StatusPending, project.PhasePlan)
	rec := doRequest(env, http.MethodPost, "/v1/projects/"+prj.ID+"/approve", getToken(t, director), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("soporte required", func(t *testing.T) {
		rec := doRequest(env, http.MethodGet, "/v1/audit", getToken(t, director), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("events are kind-tagged", func(t *testing.T) {
		rec := doRequest(env, http.MethodGet, "/v1/audit?kind=PHASE_APPROVE", getToken(t, soporte), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var events []audit.Event
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
		require.Len(t, events, 1)
		assert.Equal(t, audit.KindPhaseApprove, events[0].Kind)
		assert.Equal(t, director.ID, events[0].UserID)
	})
}
