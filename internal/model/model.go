package model

import (
	"github.com/thep200/github-star-sweeper/cfg"
	"github.com/thep200/github-star-sweeper/pkg/db"
	"github.com/thep200/github-star-sweeper/pkg/log"
)

// Model carries the collaborators every table model needs; none of it is persisted.
type Model struct {
	Config   *cfg.Config  `gorm:"-" json:"-"`
	Logger   log.Logger   `gorm:"-" json:"-"`
	Database *db.Database `gorm:"-" json:"-"`
}
