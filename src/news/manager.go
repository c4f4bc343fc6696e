package news

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"market-terminal/src/config"
	"market-terminal/src/gateway"
	"market-terminal/src/interfaces"
	"market-terminal/src/logger"
	"market-terminal/src/models"
)

// Contract ids for the symbols we resolve without a lookup round-trip.
var knownContractIDs = map[string]int64{
	"AAPL":  265598,
	"GOOGL": 208813720,
	"MSFT":  272093,
	"TSLA":  76792991,
	"AMZN":  3691937,
}

// NewsManager fetches historical headlines through the gateway and keeps the
// completed result sets around for search and summaries.
type NewsManager struct {
	mu      sync.RWMutex
	results map[int64]models.MNewsSummary

	supervisor *gateway.ConnectionSupervisor
	config     *config.Config
	logger     *logger.Logger
	db         interfaces.IDatabase
}

// -----------------------------------------------------------------------------

func NewNewsManager(supervisor *gateway.ConnectionSupervisor, cfg *config.Config, log *logger.Logger) *NewsManager {
	return &NewsManager{
		results:    make(map[int64]models.MNewsSummary),
		supervisor: supervisor,
		config:     cfg,
		logger:     log,
	}
}

// -----------------------------------------------------------------------------

// SetDatabase wires optional headline persistence.
func (nm *NewsManager) SetDatabase(db interfaces.IDatabase) {
	nm.db = db
}

// -----------------------------------------------------------------------------

// Fetch requests historical headlines for a symbol and blocks until the
// gateway signals the end of the result set or the request times out.
// A zero conID is resolved from the known-symbols table.
func (nm *NewsManager) Fetch(ctx context.Context, query models.MNewsQuery) (models.MNewsSummary, error) {
	if query.ConID == 0 {
		conID, ok := knownContractIDs[strings.ToUpper(query.Symbol)]
		if !ok {
			return models.MNewsSummary{}, fmt.Errorf("no contract id known for %q, provide con_id", query.Symbol)
		}
		query.ConID = conID
	}
	if query.TotalResults <= 0 {
		query.TotalResults = 50
	}

	id, waiter, err := nm.supervisor.Dispatch(ctx, models.ReqNews, query.Symbol, nm.config.NewsTimeout(), func(req *models.MGatewayRequest) {
		q := query
		req.News = &q
	})
	if err != nil {
		return models.MNewsSummary{}, err
	}

	outcome := <-waiter
	if outcome.State != models.ReqCompleted {
		return models.MNewsSummary{}, outcome.Err
	}

	summary := models.MNewsSummary{
		ReqID:     id,
		Symbol:    query.Symbol,
		Count:     len(outcome.Headlines),
		Providers: providerList(outcome.Headlines),
		Items:     outcome.Headlines,
	}

	nm.mu.Lock()
	nm.results[id] = summary
	nm.mu.Unlock()

	nm.logger.Info("News request %d: %d headlines for %s", id, summary.Count, query.Symbol)

	if nm.db != nil && summary.Count > 0 {
		if err := nm.db.SaveNewsItems(query.Symbol, summary.Items); err != nil {
			nm.logger.Error("News request %d: persisting headlines failed: %v", id, err)
		}
	}

	return summary, nil
}

// -----------------------------------------------------------------------------

// Get returns a completed result set by request id.
func (nm *NewsManager) Get(reqID int64) (models.MNewsSummary, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	summary, ok := nm.results[reqID]
	return summary, ok
}

// -----------------------------------------------------------------------------

// Search filters a completed result set's headlines by keyword,
// case-insensitive.
func (nm *NewsManager) Search(reqID int64, keyword string) ([]models.MNewsItem, bool) {
	nm.mu.RLock()
	summary, ok := nm.results[reqID]
	nm.mu.RUnlock()
	if !ok {
		return nil, false
	}

	needle := strings.ToLower(keyword)
	matches := make([]models.MNewsItem, 0)
	for _, item := range summary.Items {
		if strings.Contains(strings.ToLower(item.Headline), needle) {
			matches = append(matches, item)
		}
	}
	return matches, true
}

// -----------------------------------------------------------------------------

func providerList(items []models.MNewsItem) []string {
	seen := make(map[string]bool)
	providers := make([]string, 0)
	for _, item := range items {
		if item.ProviderCode != "" && !seen[item.ProviderCode] {
			seen[item.ProviderCode] = true
			providers = append(providers, item.ProviderCode)
		}
	}
	sort.Strings(providers)
	return providers
}
