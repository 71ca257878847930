package dummydb

import (
	"context"
	"time"

	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/project"
)

type projectRepository struct {
	db    *projectTable
	obsDB *observationTable
	users *userTable
}

var _ project.Repository = (*projectRepository)(nil) // interface compliance check

func NewProjectRepository(db *DB) *projectRepository {
	return &projectRepository{db: db.project, obsDB: db.observation, users: db.user}
}

// query returns projects in insertion order with student info joined.
func (repo *projectRepository) query() []project.Project {
	projects := make([]project.Project, 0, len(repo.db.order))
	for _, id := range repo.db.order {
		if p, ok := repo.db.table[id]; ok {
			projects = append(projects, repo.joinStudent(*p))
		}
	}
	return projects
}

func (repo *projectRepository) joinStudent(prj project.Project) project.Project {
	repo.users.RLock()
	defer repo.users.RUnlock()
	if usr, ok := repo.users.table[prj.StudentID]; ok {
		prj.StudentName = usr.Name
		prj.StudentEmail = usr.Email
	}
	return prj
}

func (repo *projectRepository) CreateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[prj.ID] = &prj
	repo.db.order = append(repo.db.order, prj.ID)
	return repo.joinStudent(prj), nil
}

func (repo *projectRepository) GetProject(ctx context.Context, filter project.GetFilter) (project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if prj, ok := repo.db.table[filter.ID]; ok {
			return repo.joinStudent(*prj), nil
		}
		return project.Project{}, project.ErrNotFound
	}
	if filter.StudentID != "" {
		for _, id := range repo.db.order {
			if prj, ok := repo.db.table[id]; ok && prj.StudentID == filter.StudentID {
				return repo.joinStudent(*prj), nil
			}
		}
	}
	return project.Project{}, project.ErrNotFound
}

func (repo *projectRepository) QueryProjects(ctx context.Context, filter *project.QueryFilter, ordering []core.DBOrdering) ([]project.Project, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	projects := repo.query()
	if filter == nil || filter.IsEmpty() {
		return projects, nil
	}

	var filtered []project.Project
	for _, p := range projects {
		if filter.AdvisorID != "" && p.AdvisorID != filter.AdvisorID {
			continue
		}
		if filter.StudentID != "" && p.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.RiskLevel != "" && p.RiskLevel != filter.RiskLevel {
			continue
		}
		if filter.Faculty != "" && p.Faculty != filter.Faculty {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}

func (repo *projectRepository) UpdateProject(ctx context.Context, prj project.Project) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// only save set fields
	orig, ok := repo.db.table[prj.ID]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	if prj.Title != "" {
		orig.Title = prj.Title
	}
	if prj.Faculty != "" {
		orig.Faculty = prj.Faculty
	}
	if prj.AdvisorID != "" {
		orig.AdvisorID = prj.AdvisorID
	}
	if prj.Budget != 0 {
		orig.Budget = prj.Budget
	}
	if !prj.EndDate.IsZero() {
		orig.EndDate = prj.EndDate
	}
	if prj.RiskLevel != "" {
		orig.RiskLevel = prj.RiskLevel
	}
	if prj.Similarity != 0 {
		orig.Similarity = prj.Similarity
	}
	if !prj.UpdatedAt.IsZero() {
		orig.UpdatedAt = prj.UpdatedAt
	}
	return repo.joinStudent(*orig), nil
}

func (repo *projectRepository) ApplyTransition(ctx context.Context, projectID string, from project.Snapshot, to project.Transition) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	return repo.applyTransition(projectID, from, to)
}

// applyTransition compare-and-sets; callers must hold the write lock.
func (repo *projectRepository) applyTransition(projectID string, from project.Snapshot, to project.Transition) (project.Project, error) {
	prj, ok := repo.db.table[projectID]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	if prj.Status != from.Status || prj.Phase != from.Phase {
		return project.Project{}, project.ErrTransitionConflict
	}
	prj.Status = to.Status
	prj.Phase = to.Phase
	prj.RiskLevel = to.RiskLevel
	prj.UpdatedAt = time.Now().UTC()
	return repo.joinStudent(*prj), nil
}

func (repo *projectRepository) ObserveProject(ctx context.Context, obs project.Observation, from project.Snapshot, to project.Transition) (project.Project, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// transition first so a conflict leaves no observation behind
	prj, err := repo.applyTransition(obs.ProjectID, from, to)
	if err != nil {
		return project.Project{}, err
	}

	repo.obsDB.Lock()
	repo.obsDB.table[obs.ID] = &obs
	repo.obsDB.order = append(repo.obsDB.order, obs.ID)
	repo.obsDB.Unlock()

	return prj, nil
}

func (repo *projectRepository) QueryObservations(ctx context.Context, projectID string) ([]project.Observation, error) {
	repo.obsDB.RLock()
	defer repo.obsDB.RUnlock()

	var observations []project.Observation
	for _, id := range repo.obsDB.order {
		if obs, ok := repo.obsDB.table[id]; ok && obs.ProjectID == projectID {
			observations = append(observations, *obs)
		}
	}
	return observations, nil
}

func (repo *projectRepository) ResolveObservation(ctx context.Context, observationID string) (project.Observation, error) {
	repo.obsDB.Lock()
	defer repo.obsDB.Unlock()

	obs, ok := repo.obsDB.table[observationID]
	if !ok {
		return project.Observation{}, project.ErrObservationNotFound
	}
	obs.IsResolved = true
	return *obs, nil
}

func (repo *projectRepository) GetStats(ctx context.Context) (project.Stats, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var stats project.Stats
	for _, p := range repo.query() {
		stats.Total++
		switch p.Status {
		case project.StatusInExecution:
			stats.Active++
		case project.StatusPending:
			stats.Pending++
		}
		if p.RiskLevel == project.RiskHigh {
			stats.HighRisk++
		}
	}
	return stats, nil
}
