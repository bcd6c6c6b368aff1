package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory lazily builds the repository set for one database handle
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns the shared repository set
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetBatchSessionRepository returns the batch session repository instance
func (f *Factory) GetBatchSessionRepository() BatchSessionRepository {
	return f.GetRepositories().BatchSession
}

// GetReceiptRepository returns the receipt repository instance
func (f *Factory) GetReceiptRepository() ReceiptRepository {
	return f.GetRepositories().Receipt
}

// DB exposes the underlying handle for health checks
func (f *Factory) DB() *gorm.DB {
	return f.db
}
