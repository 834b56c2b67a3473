package registry

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// reportRecord is the captain_reports row.
type reportRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RobotID    int64     `gorm:"index"`
	Name       string    `gorm:"type:varchar(255)"`
	Epoch      uint64    `gorm:"index"`
	Candidates []int64   `gorm:"serializer:json"`
	Accepted   bool      `gorm:"index"`
	Reason     string    `gorm:"type:text"`
	ReportedAt time.Time `gorm:"index"`
}

func (reportRecord) TableName() string {
	return "captain_reports"
}

func newReportRecord(rep Report) reportRecord {
	return reportRecord{
		RobotID:    rep.Claim.ID,
		Name:       rep.Claim.Name,
		Epoch:      rep.Claim.Epoch,
		Candidates: rep.Claim.Candidates,
		Accepted:   rep.Accepted,
		Reason:     rep.Reason,
		ReportedAt: rep.ReportedAt,
	}
}

func (rec reportRecord) report() Report {
	return Report{
		Claim: CaptainClaim{
			ID:         rec.RobotID,
			Name:       rec.Name,
			Epoch:      rec.Epoch,
			Candidates: rec.Candidates,
		},
		Accepted:   rec.Accepted,
		Reason:     rec.Reason,
		ReportedAt: rec.ReportedAt,
	}
}

// GormReportLog persists captain claims through gorm so the audit trail
// survives registry restarts.
type GormReportLog struct {
	db *gorm.DB
}

// NewGormReportLog migrates the captain_reports table on db.
func NewGormReportLog(db *gorm.DB) (*GormReportLog, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if err := db.AutoMigrate(&reportRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormReportLog{db: db}, nil
}

// OpenPostgresReportLog connects to PostgreSQL with the given DSN.
func OpenPostgresReportLog(dsn string) (*GormReportLog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormReportLog(db)
}

func (l *GormReportLog) Record(ctx context.Context, rep Report) error {
	rec := newReportRecord(rep)
	return l.db.WithContext(ctx).Create(&rec).Error
}

func (l *GormReportLog) Recent(ctx context.Context, n int) ([]Report, error) {
	var recs []reportRecord
	err := l.db.WithContext(ctx).
		Order("id DESC").
		Limit(n).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]Report, len(recs))
	for i, rec := range recs {
		out[i] = rec.report()
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (l *GormReportLog) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
