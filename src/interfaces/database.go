package interfaces

import "market-terminal/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveBarsBulk inserts a completed symbol download's rows.
	SaveBarsBulk(symbol string, bars []models.MDataBar) error

	// -----------------------------------------------------------------------------

	// SaveSummary records a per-symbol download summary.
	SaveSummary(summary models.MDataSummary) error

	// -----------------------------------------------------------------------------

	// SaveNewsItems stores headlines for a completed news request.
	SaveNewsItems(symbol string, items []models.MNewsItem) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes data older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
