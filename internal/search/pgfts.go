package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across requests and public timeline
// notes using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('spanish', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	// Requests sub-query. Only open requests are searchable.
	if q.FilterType == "" || q.FilterType == ResultRequest {
		reqWhere := fmt.Sprintf(
			"to_tsvector('spanish', r.category || ' ' || r.subcategory || ' ' || r.location || ' ' || r.description) @@ %s AND r.raw_status = 'open'",
			tsQuery)
		if q.FilterCategory != "" {
			reqWhere += fmt.Sprintf(" AND r.category = $%d", argN)
			args = append(args, q.FilterCategory)
			argN++
		}
		if q.FilterLocation != "" {
			reqWhere += fmt.Sprintf(" AND r.location = $%d", argN)
			args = append(args, q.FilterLocation)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'request'::text AS type, r.id, r.category AS title,
				ts_headline('spanish', coalesce(r.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.id AS request_id, r.category, r.location,
				ts_rank(to_tsvector('spanish', r.category || ' ' || r.subcategory || ' ' || r.location || ' ' || r.description), %s) AS rank
			FROM requests r
			WHERE %s`, tsQuery, tsQuery, reqWhere))
	}

	// Public timeline notes sub-query
	if q.FilterType == "" || q.FilterType == ResultNote {
		noteWhere := fmt.Sprintf(
			"to_tsvector('spanish', e.title || ' ' || e.description) @@ %s AND NOT e.is_private AND e.event_type = 'note_added'",
			tsQuery)
		if q.FilterCategory != "" {
			noteWhere += fmt.Sprintf(" AND r.category = $%d", argN)
			args = append(args, q.FilterCategory)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'note'::text AS type, e.id, e.title,
				ts_headline('spanish', coalesce(e.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				e.request_id, r.category, r.location,
				ts_rank(to_tsvector('spanish', e.title || ' ' || e.description), %s) AS rank
			FROM timeline_events e
			JOIN requests r ON r.id = e.request_id
			WHERE %s`, tsQuery, tsQuery, noteWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, request_id, category, location
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.RequestID, &r.Category, &r.Location); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]RequestRecord, []NoteRecord, error) {
	reqRows, err := p.db.QueryContext(ctx, `
		SELECT id, category, subcategory, location, description, raw_status
		FROM requests
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load requests: %w", err)
	}
	defer reqRows.Close()

	requests := make([]RequestRecord, 0)
	for reqRows.Next() {
		var r RequestRecord
		if err := reqRows.Scan(&r.ID, &r.Category, &r.Subcategory, &r.Location, &r.Description, &r.RawStatus); err != nil {
			return nil, nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, r)
	}
	if err := reqRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate requests: %w", err)
	}

	noteRows, err := p.db.QueryContext(ctx, `
		SELECT e.id, e.title, e.description, e.request_id, r.category
		FROM timeline_events e
		JOIN requests r ON r.id = e.request_id
		WHERE NOT e.is_private AND e.event_type = 'note_added'
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load notes: %w", err)
	}
	defer noteRows.Close()

	notes := make([]NoteRecord, 0)
	for noteRows.Next() {
		var n NoteRecord
		if err := noteRows.Scan(&n.ID, &n.Title, &n.Description, &n.RequestID, &n.Category); err != nil {
			return nil, nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := noteRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate notes: %w", err)
	}

	return requests, notes, nil
}
