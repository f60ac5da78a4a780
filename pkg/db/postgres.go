package db

import (
	"github.com/charmbracelet/log"
	"github.com/mahaj/bizchat/pkg/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenPostgres opens the notification database and runs its migrations.
func OpenPostgres(dsn string, verbose bool) (*gorm.DB, error) {
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if verbose {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{DSN: dsn}), gormConfig)
	if err != nil {
		return nil, err
	}
	if err := MigrateNotifications(gormDB); err != nil {
		return nil, err
	}
	log.Info("connected to postgres")
	return gormDB, nil
}

func MigrateNotifications(g *gorm.DB) error {
	return g.AutoMigrate(&model.Notification{})
}
