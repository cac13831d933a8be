package database

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"questbot.io/questbot/internal/config"
	"questbot.io/questbot/pkg/errors"
	"questbot.io/questbot/pkg/log"
)

// Store is the persistent home of ledgers, quests, role xp assignments, streak gains,
// channel whitelists and guild settings.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened gorm handle. Call Migrate once before use.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GormConfig is shared by the postgres connector and the tests.
func GormConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: tablePrefix,
		},
	}
}

// OpenPostgres connects and pings postgres.
func OpenPostgres(conf *config.DBCredential) (*gorm.DB, error) {
	cli, err := gorm.Open(postgres.Open(conf.Dsn()), GormConfig(conf.TablePrefix))
	if err != nil {
		return nil, errors.WrapAndReport(err, "connect to pg")
	}
	db, err := cli.DB()
	if err != nil {
		return nil, errors.WrapAndReport(err, "get pg conn")
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.WrapAndReport(err, "ping to pg")
	}
	log.Info("Connected to postgres...")
	return cli, nil
}

// Migrate creates or alters every table the store owns.
func (s *Store) Migrate() error {
	err := s.db.AutoMigrate(
		&MemberLevel{},
		&Quest{},
		&QuestCompletion{},
		&RoleExpAssignment{},
		&StreakRoleGain{},
		&WhitelistedChannel{},
		&GuildSettings{},
	)
	return errors.WrapAndReport(err, "autoMigrate tables")
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return errors.Wrap(db.PingContext(ctx), "ping store")
}

// Close releases the connection pool.
func (s *Store) Close() {
	db, err := s.db.DB()
	if err != nil {
		log.Error(err)
		return
	}
	if err := db.Close(); err != nil {
		log.Errorf("close store: %v", err)
	}
}
