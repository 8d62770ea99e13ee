// Package search implements C7: a query planner over the FTS5 index
// populated by the store's messages_ai/au/ad triggers, scoped to the
// caller's membership set and paged by cursor. Grounded on the same
// FTS5 shadow-table layout retrieved from the neilberkman-shannon
// reference, re-stemming the query through internal/stem so it matches
// the stemmed_message column the same way the message body was stemmed
// on write.
package search

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopmindai/chatcore/internal/apperr"
	"github.com/shopmindai/chatcore/internal/stem"
)

// SortMode selects the ranking function.
type SortMode int

const (
	// SortRank orders by FTS5 BM25 relevance.
	SortRank SortMode = iota
	// SortRecency orders by created_at descending.
	SortRecency
)

// Filters narrows a search beyond the query text (§4.7). Conversations
// must already be a subset of the caller's memberships — the search
// query additionally intersects with membership at query time so a
// caller can never see a result for a conversation they no longer
// belong to, even if Filters was built from stale data.
type Filters struct {
	ConversationIDs []int64
	SenderID        *int64
	CreatedAfter    *int64 // unix seconds, inclusive
	CreatedBefore   *int64 // unix seconds, exclusive
	Sort            SortMode
}

// Result is one matched message.
type Result struct {
	MessageID      int64
	ConversationID int64
	Snippet        string
	Rank           float64
	CreatedAt      int64
}

// Cursor resumes a paged search. The zero value requests the first
// page. For SortRank it tracks (Rank, MessageID); for SortRecency it
// tracks (CreatedAt, MessageID) — both opaque to the caller, who just
// round-trips the value returned in Page.NextCursor.
type Cursor struct {
	Rank      float64
	CreatedAt int64
	MessageID int64
}

// Page is one page of search results plus the cursor for the next one.
type Page struct {
	Results    []Result
	NextCursor Cursor
	HasMore    bool
}

// Searcher runs FTS queries directly against the store's *sql.DB.
type Searcher struct {
	db *sql.DB
}

// New builds a Searcher over the given database handle (typically
// (*store.Store).DB()).
func New(db *sql.DB) *Searcher {
	return &Searcher{db: db}
}

// Search tokenises and stems q the same way messages are stemmed on
// write, then queries the FTS index, always intersected with the
// caller's membership set (either Filters.ConversationIDs, or — if
// empty — every conversation callerID belongs to).
func (s *Searcher) Search(ctx context.Context, callerID int64, q string, f Filters, cursor Cursor, limit int) (Page, error) {
	stemmedQuery := stem.Text(q)
	if strings.TrimSpace(stemmedQuery) == "" {
		return Page{}, apperr.New(apperr.Validation, "search query has no indexable terms")
	}
	if limit <= 0 {
		limit = 25
	}

	rows, err := s.db.QueryContext(ctx, `SELECT conversation_id FROM memberships WHERE user_id = ?`, callerID)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "load caller memberships", err)
	}
	memberOf := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Page{}, apperr.Wrap(apperr.Internal, "scan membership", err)
		}
		memberOf[id] = true
	}
	rows.Close()

	var convIDs []int64
	if len(f.ConversationIDs) == 0 {
		for id := range memberOf {
			convIDs = append(convIDs, id)
		}
	} else {
		for _, id := range f.ConversationIDs {
			if memberOf[id] {
				convIDs = append(convIDs, id)
			}
		}
	}
	if len(convIDs) == 0 {
		return Page{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(convIDs)), ",")
	args := []any{stemmedQuery}
	for _, id := range convIDs {
		args = append(args, id)
	}

	orderClause := "bm25(messages_fts), m.id DESC"
	if f.Sort == SortRecency {
		orderClause = "m.created_at DESC, m.id DESC"
	}

	query := `
		SELECT m.id, m.conversation_id, snippet(messages_fts, 1, '[', ']', '...', 8), bm25(messages_fts), m.created_at
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE messages_fts.stemmed_message MATCH ?
		  AND m.conversation_id IN (` + placeholders + `)`

	if f.SenderID != nil {
		query += ` AND m.sender_user_id = ?`
		args = append(args, *f.SenderID)
	}
	if f.CreatedAfter != nil {
		query += ` AND m.created_at >= ?`
		args = append(args, *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		query += ` AND m.created_at < ?`
		args = append(args, *f.CreatedBefore)
	}
	if cursor != (Cursor{}) {
		if f.Sort == SortRecency {
			query += ` AND (m.created_at < ? OR (m.created_at = ? AND m.id < ?))`
			args = append(args, cursor.CreatedAt, cursor.CreatedAt, cursor.MessageID)
		} else {
			query += ` AND (bm25(messages_fts) > ? OR (bm25(messages_fts) = ? AND m.id < ?))`
			args = append(args, cursor.Rank, cursor.Rank, cursor.MessageID)
		}
	}
	query += " ORDER BY " + orderClause + " LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "run search query", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.MessageID, &r.ConversationID, &r.Snippet, &r.Rank, &r.CreatedAt); err != nil {
			return Page{}, apperr.Wrap(apperr.Internal, "scan search result", err)
		}
		page.Results = append(page.Results, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, apperr.Wrap(apperr.Internal, "iterate search results", err)
	}

	if len(page.Results) > limit {
		page.HasMore = true
		page.Results = page.Results[:limit]
	}
	if len(page.Results) > 0 {
		last := page.Results[len(page.Results)-1]
		page.NextCursor = Cursor{Rank: last.Rank, CreatedAt: last.CreatedAt, MessageID: last.MessageID}
	}
	return page, nil
}
