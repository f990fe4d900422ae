package model

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

const nameMaxLength = 255

type Repo struct {
	Model
	Name        string    `json:"name" gorm:"column:name;type:varchar(255);primaryKey"`
	Stars       int64     `json:"stars" gorm:"column:stars;not null;default:0"`
	LastUpdated time.Time `json:"last_updated" gorm:"column:last_updated;not null"`
}

func NewRepo(config *cfg.Config, logger log.Logger, database *db.Database) (*Repo, error) {
	if database == nil {
		return nil, fmt.Errorf("database is nil")
	}
	repo := &Repo{
		Model: Model{
			Config:   config,
			Logger:   logger,
			Database: database,
		},
	}
	return repo, nil
}

func (r *Repo) TableName() string {
	return "repositories"
}

func (r *Repo) batchSize() int {
	if r.Config != nil && r.Config.Database.BatchSize > 0 {
		return r.Config.Database.BatchSize
	}
	return 100
}

// UpsertBatch writes records keyed by name; stars and last_updated of existing rows are overwritten.
// The whole batch commits in one transaction. It returns the number of distinct names written.
func (r *Repo) UpsertBatch(ctx context.Context, records []RepositoryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	database, err := r.Database.Db()
	if err != nil {
		return 0, fmt.Errorf("failed to get database connection: %w", err)
	}

	// Một câu INSERT không được cập nhật cùng một khóa hai lần (Postgres), gộp trước
	latest := Latest(records)
	rows := make([]Repo, 0, len(latest))
	for _, record := range latest {
		rows = append(rows, Repo{
			Name:        TruncateString(record.Name, nameMaxLength),
			Stars:       record.Stars,
			LastUpdated: record.LastSeen.UTC(),
		})
	}

	err = database.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"stars", "last_updated"}),
		}).CreateInBatches(rows, r.batchSize())

		if result.Error != nil {
			return fmt.Errorf("failed to batch upsert repositories: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if r.Logger != nil {
		r.Logger.Debug(ctx, "Upserted %d repositories (%d records received)", len(rows), len(records))
	}
	return len(rows), nil
}

// Find returns one repository by its owner/name key.
func (r *Repo) Find(ctx context.Context, name string) (*Repo, error) {
	database, err := r.Database.Db()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	found := &Repo{}
	if err := database.WithContext(ctx).Where("name = ?", name).Take(found).Error; err != nil {
		return nil, err
	}
	return found, nil
}

// List pages through repositories ordered by stars, optionally filtered by a name substring.
func (r *Repo) List(ctx context.Context, search string, offset, limit int) ([]Repo, int64, error) {
	database, err := r.Database.Db()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get database connection: %w", err)
	}

	filtered := func() *gorm.DB {
		query := database.WithContext(ctx).Model(&Repo{})
		if search != "" {
			query = query.Where("name LIKE ?", "%"+search+"%")
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var repos []Repo
	if err := filtered().Order("stars DESC").Order("name ASC").Offset(offset).Limit(limit).Find(&repos).Error; err != nil {
		return nil, 0, err
	}
	return repos, total, nil
}
