package dummydb

import (
	"sync"

	"github.com/unapuno/tesis/core/audit"
	"github.com/unapuno/tesis/core/project"
	"github.com/unapuno/tesis/core/user"
)

type (
	DB struct {
		user        *userTable
		project     *projectTable
		observation *observationTable
		dismissed   *dismissedTable
		audit       *auditTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
		order []string
	}

	projectTable struct {
		sync.RWMutex
		table map[string]*project.Project
		order []string
	}

	observationTable struct {
		sync.RWMutex
		table map[string]*project.Observation
		order []string
	}

	dismissedTable struct {
		sync.RWMutex
		table map[string]map[string]struct{} // userID -> alertID set
	}

	auditTable struct {
		sync.RWMutex
		events []audit.Event
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:        &userTable{table: make(map[string]*user.User)},
		project:     &projectTable{table: make(map[string]*project.Project)},
		observation: &observationTable{table: make(map[string]*project.Observation)},
		dismissed:   &dismissedTable{table: make(map[string]map[string]struct{})},
		audit:       &auditTable{},
	}
	return db, nil
}
