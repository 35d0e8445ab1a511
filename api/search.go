package api

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/vendors"
)

var searchLogger = log.GetLogger("ApiSearch")

// SearchResultItem represents one transcript hit
type SearchResultItem struct {
	MessageID    string            `json:"messageId"`
	SessionID    string            `json:"sessionId"`
	AgentID      string            `json:"agentId"`
	Role         string            `json:"role"`
	SessionTitle string            `json:"sessionTitle,omitempty"`
	Snippet      string            `json:"snippet"`
	CreatedAt    int64             `json:"createdAt"`
	Highlights   map[string]string `json:"highlights,omitempty"`
}

// Search handles GET /api/search
// Queries the Meilisearch transcript index. Without a configured index the
// endpoint degrades to a LIKE scan over the local store.
func Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		RespondValidationError(c, "Validation failed", []ErrorDetail{
			{Field: "q", Message: "query parameter 'q' is required"},
		})
		return
	}
	if len(query) < 2 {
		RespondValidationError(c, "Validation failed", []ErrorDetail{
			{Field: "q", Message: "query must be at least 2 characters"},
		})
		return
	}

	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(c.Query("offset")); err == nil && o >= 0 {
		offset = o
	}

	sessionFilter := c.Query("sessionId")
	agentFilter := c.Query("agentId")
	roleFilter := c.Query("role")

	results := []SearchResultItem{}
	total := 0

	meili := vendors.GetMeiliClient()
	if meili != nil {
		meiliResults, err := meili.Search(query, vendors.MeiliSearchOptions{
			Limit:         limit,
			Offset:        offset,
			SessionFilter: sessionFilter,
			AgentFilter:   agentFilter,
			RoleFilter:    roleFilter,
		})
		if err != nil {
			searchLogger.Error().Err(err).Msg("meilisearch query failed")
			RespondServiceUnavailable(c, "Search backend is unavailable")
			return
		}

		total = meiliResults.EstimatedTotalHits
		for _, hit := range meiliResults.Hits {
			snippet := hit.Content
			if formatted, ok := hit.Formatted["content"]; ok && formatted != "" {
				snippet = formatted
			}

			results = append(results, SearchResultItem{
				MessageID:    hit.DocumentID,
				SessionID:    hit.SessionID,
				AgentID:      hit.AgentID,
				Role:         hit.Role,
				SessionTitle: hit.Title,
				Snippet:      safeSubstring(snippet, 300),
				CreatedAt:    hit.CreatedAt,
				Highlights:   hit.Formatted,
			})
		}
	} else {
		// Fallback: LIKE scan over the local store
		rows, err := searchMessagesLike(query, sessionFilter, limit, offset)
		if err != nil {
			searchLogger.Error().Err(err).Msg("database search failed")
			RespondInternalError(c, "Search failed")
			return
		}
		results = rows
		total = len(rows) + offset
	}

	pagination := &Pagination{
		Total:   &total,
		Limit:   &limit,
		Offset:  &offset,
		HasMore: offset+len(results) < total,
	}

	RespondList(c, results, pagination)
}

// searchMessagesLike is the storeside fallback when Meilisearch is not
// configured. It matches raw content JSON, which is crude but keeps the
// endpoint functional on a bare deployment.
func searchMessagesLike(query, sessionFilter string, limit, offset int) ([]SearchResultItem, error) {
	stmt := `
		SELECT m.id, m.session_id, s.agent_id, m.role, m.content, s.title, m.created_at
		FROM chat_messages m
		JOIN chat_sessions s ON s.id = m.session_id
		WHERE m.content LIKE '%' || ? || '%'`
	params := []db.QueryParam{query}

	if sessionFilter != "" {
		stmt += ` AND m.session_id = ?`
		params = append(params, sessionFilter)
	}
	stmt += ` ORDER BY m.created_at DESC LIMIT ? OFFSET ?`
	params = append(params, limit, offset)

	return db.Select(stmt, params, func(rows *sql.Rows) (SearchResultItem, error) {
		var item SearchResultItem
		var title *string
		if err := rows.Scan(&item.MessageID, &item.SessionID, &item.AgentID, &item.Role, &item.Snippet, &title, &item.CreatedAt); err != nil {
			return item, err
		}
		if title != nil {
			item.SessionTitle = *title
		}
		item.Snippet = safeSubstring(item.Snippet, 300)
		return item, nil
	})
}

// safeSubstring truncates to maxLen runes, not bytes
func safeSubstring(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
