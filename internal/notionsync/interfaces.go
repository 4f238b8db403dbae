package notionsync

import (
	"context"

	"github.com/dvloznov/statement-categorizer/internal/domain"
	"github.com/jomei/notionapi"
)

// NotionService defines the interface for interacting with Notion API.
// This interface enables mocking and testing of Notion operations.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)

	// UpdatePage updates an existing Notion page with the given properties.
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)

	// QueryDatabase queries a Notion database with the given filter.
	QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	// ArchivePage moves a page to the trash.
	ArchivePage(ctx context.Context, pageID string) error
}

// TransactionLister supplies the ledger to sync.
type TransactionLister interface {
	ListTransactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error)
}

// ListerFunc adapts a function to TransactionLister.
type ListerFunc func(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error)

// ListTransactions implements TransactionLister.
func (f ListerFunc) ListTransactions(ctx context.Context, statementID string) ([]*domain.CategorizedTransaction, error) {
	return f(ctx, statementID)
}
