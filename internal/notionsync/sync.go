// Package notionsync mirrors a statement's categorized ledger into a Notion
// database, one page per transaction keyed by the "Transaction ID" property.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/jomei/notionapi"
)

// pageSize is the Notion maximum for database queries.
const pageSize = 100

// Result counts what a sync did.
type Result struct {
	StatementID string `json:"statement_id"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Archived    int    `json:"archived"`
	Failed      int    `json:"failed"`
}

// Syncer pushes ledgers to one Notion database.
type Syncer struct {
	notion     NotionService
	databaseID string
	dryRun     bool
}

// NewSyncer creates a Syncer. With dryRun set, nothing is written and the
// result reports what would have changed.
func NewSyncer(notion NotionService, databaseID string, dryRun bool) *Syncer {
	return &Syncer{notion: notion, databaseID: databaseID, dryRun: dryRun}
}

// SyncStatement upserts every transaction of a statement and archives pages of
// the statement whose transaction no longer exists. Per-page failures are
// logged and counted; the sync carries on.
func (s *Syncer) SyncStatement(ctx context.Context, repo TransactionLister, statementID string) (Result, error) {
	log := logger.FromContext(ctx).With().
		Str("statement_id", statementID).
		Bool("dry_run", s.dryRun).
		Logger()
	res := Result{StatementID: statementID}

	txns, err := repo.ListTransactions(ctx, statementID)
	if err != nil {
		return res, fmt.Errorf("SyncStatement: failed to list transactions: %w", err)
	}

	pages, err := s.statementPages(ctx, statementID)
	if err != nil {
		return res, fmt.Errorf("SyncStatement: failed to query Notion pages: %w", err)
	}
	log.Info().
		Int("transaction_count", len(txns)).
		Int("notion_page_count", len(pages)).
		Msg("Starting ledger sync to Notion")

	existing := make(map[string]string, len(pages))
	for _, page := range pages {
		txID := extractTransactionID(page)
		if _, dup := existing[txID]; dup || txID == "" {
			// Pages without an ID or duplicates of an ID are stale.
			existing[fmt.Sprintf("stale:%s", page.ID)] = string(page.ID)
			continue
		}
		existing[txID] = string(page.ID)
	}

	live := make(map[string]bool, len(txns))
	for _, tx := range txns {
		live[tx.TransactionID] = true
		props := TransactionToNotionProperties(tx)

		pageID, found := existing[tx.TransactionID]
		if s.dryRun {
			if found {
				res.Updated++
			} else {
				res.Created++
			}
			continue
		}

		if found {
			if _, err := s.notion.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Str("page_id", pageID).Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
			continue
		}

		if _, err := s.notion.CreatePage(ctx, s.databaseID, props); err != nil {
			log.Warn().Err(err).Str("transaction_id", tx.TransactionID).Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		res.Created++
	}

	for txID, pageID := range existing {
		if live[txID] {
			continue
		}
		if !s.dryRun {
			if err := s.notion.ArchivePage(ctx, pageID); err != nil {
				log.Warn().Err(err).Str("page_id", pageID).Msg("Failed to archive stale Notion page")
				res.Failed++
				continue
			}
		}
		res.Archived++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("failed", res.Failed).
		Msg("Ledger sync to Notion finished")
	return res, nil
}

// statementPages pages through the database rows of one statement.
func (s *Syncer) statementPages(ctx context.Context, statementID string) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: PropStatementID,
				RichText: &notionapi.TextFilterCondition{Equals: statementID},
			},
			PageSize: pageSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := s.notion.QueryDatabase(ctx, s.databaseID, req)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return all, nil
}
