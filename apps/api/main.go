package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/unapuno/tesis/apps/api/echo"
	"github.com/unapuno/tesis/core"
	"github.com/unapuno/tesis/core/alert"
	"github.com/unapuno/tesis/core/audit"
	"github.com/unapuno/tesis/core/project"
	"github.com/unapuno/tesis/core/user"
	emailsvc "github.com/unapuno/tesis/services/email"
	logsvc "github.com/unapuno/tesis/services/logger"
	"github.com/unapuno/tesis/storage/database"
	pgrepos "github.com/unapuno/tesis/storage/database/postgres"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig(core.Getwd())

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Fatal("closing database", err)
		}
	}()
	sdb := sqlx.NewDb(db, conf.Database.Engine)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	auditSvc := audit.NewService(pgrepos.NewAuditRepository(sdb), logger)
	usrSvc := user.NewService(pgrepos.NewUserRepository(sdb))
	projRepo := pgrepos.NewProjectRepository(sdb)
	projSvc := project.NewService(projRepo, auditSvc)
	alertSvc := alert.NewService(pgrepos.NewDismissedAlertRepository(sdb), projRepo, auditSvc, mailSvc)

	validate, translator := core.NewValidator()

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(&echoapi.Options{
		Addr:       conf.Server.Address(),
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		ProjectSvc: projSvc,
		AlertSvc:   alertSvc,
		AuditSvc:   auditSvc,
	})
	server.Start()
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
