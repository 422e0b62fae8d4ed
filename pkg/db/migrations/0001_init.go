package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Alert struct {
	ID         int64     `gorm:"type:bigserial;primaryKey"`
	Trap       string    `gorm:"type:text;not null;index"`
	Path       string    `gorm:"type:text;not null"`
	Op         string    `gorm:"type:text;not null"`
	Host       string    `gorm:"type:text"`
	Actor      string    `gorm:"type:text"`
	ObservedAt time.Time `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type Deployment struct {
	ID         int64          `gorm:"type:bigserial;primaryKey"`
	Deployed   int            `gorm:"type:integer;not null"`
	Total      int            `gorm:"type:integer;not null"`
	Host       string         `gorm:"type:text"`
	Actor      string         `gorm:"type:text"`
	Artifacts  datatypes.JSON `gorm:"type:jsonb"`
	FinishedAt time.Time      `gorm:"type:timestamptz;not null"`
	CreatedAt  time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(&Alert{}, &Deployment{})
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(&Deployment{}, &Alert{})
}
