package vendors

import (
	"sync"

	"github.com/meilisearch/meilisearch-go"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/log"
)

var (
	meiliClient     *MeiliClient
	meiliClientOnce sync.Once
	meiliLogger     = log.GetLogger("Meilisearch")
)

// MeiliClient wraps the Meilisearch client
type MeiliClient struct {
	client   meilisearch.ServiceManager
	index    meilisearch.IndexManager
	indexUID string
}

// TranscriptDocument is the indexed form of a finalized chat message
type TranscriptDocument struct {
	DocumentID string `json:"documentId"`
	SessionID  string `json:"sessionId"`
	AgentID    string `json:"agentId"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	Title      string `json:"title,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
}

// MeiliSearchOptions holds search options
type MeiliSearchOptions struct {
	Limit         int
	Offset        int
	SessionFilter string
	AgentFilter   string
	RoleFilter    string
}

// MeiliSearchResult represents a search result
type MeiliSearchResult struct {
	Hits               []MeiliHit
	EstimatedTotalHits int
	Limit              int
	Offset             int
	Query              string
}

// MeiliHit represents a single search hit
type MeiliHit struct {
	DocumentID string
	SessionID  string
	AgentID    string
	Role       string
	Content    string
	Title      string
	CreatedAt  int64
	Formatted  map[string]string
}

// GetMeiliClient returns the singleton Meilisearch client
func GetMeiliClient() *MeiliClient {
	meiliClientOnce.Do(func() {
		cfg := config.Get()
		if cfg.MeiliHost == "" {
			meiliLogger.Warn().Msg("MEILI_HOST not configured, Meilisearch disabled")
			return
		}

		client := meilisearch.New(cfg.MeiliHost, meilisearch.WithAPIKey(cfg.MeiliAPIKey))

		// Verify connection
		if _, err := client.Health(); err != nil {
			meiliLogger.Error().Err(err).Msg("failed to connect to Meilisearch")
			return
		}

		index := client.Index(cfg.MeiliIndex)

		meiliClient = &MeiliClient{
			client:   client,
			index:    index,
			indexUID: cfg.MeiliIndex,
		}

		meiliLogger.Info().Str("host", cfg.MeiliHost).Str("index", cfg.MeiliIndex).Msg("Meilisearch initialized")
	})

	return meiliClient
}

// Search performs a search query over the transcript index
func (m *MeiliClient) Search(query string, opts MeiliSearchOptions) (*MeiliSearchResult, error) {
	if m == nil {
		return nil, nil
	}

	// Build filter
	var filters []string
	if opts.SessionFilter != "" {
		filters = append(filters, "sessionId = \""+escapeFilter(opts.SessionFilter)+"\"")
	}
	if opts.AgentFilter != "" {
		filters = append(filters, "agentId = \""+escapeFilter(opts.AgentFilter)+"\"")
	}
	if opts.RoleFilter != "" {
		filters = append(filters, "role = \""+escapeFilter(opts.RoleFilter)+"\"")
	}

	filter := ""
	if len(filters) > 0 {
		filter = filters[0]
		for _, f := range filters[1:] {
			filter += " AND " + f
		}
	}

	searchReq := &meilisearch.SearchRequest{
		Limit:                 int64(opts.Limit),
		Offset:                int64(opts.Offset),
		AttributesToHighlight: []string{"content", "title"},
		AttributesToCrop:      []string{"content"},
		CropLength:            200,
		MatchingStrategy:      "all",
	}

	if filter != "" {
		searchReq.Filter = filter
	}

	resp, err := m.index.Search(query, searchReq)
	if err != nil {
		return nil, err
	}

	result := &MeiliSearchResult{
		EstimatedTotalHits: int(resp.EstimatedTotalHits),
		Limit:              opts.Limit,
		Offset:             opts.Offset,
		Query:              query,
	}

	for _, hit := range resp.Hits {
		h := hit.(map[string]interface{})

		meiliHit := MeiliHit{
			DocumentID: getString(h, "documentId"),
			SessionID:  getString(h, "sessionId"),
			AgentID:    getString(h, "agentId"),
			Role:       getString(h, "role"),
			Content:    getString(h, "content"),
			Title:      getString(h, "title"),
			CreatedAt:  getInt64(h, "createdAt"),
		}

		// Get formatted (highlighted) fields
		if formatted, ok := h["_formatted"].(map[string]interface{}); ok {
			meiliHit.Formatted = make(map[string]string)
			for k, v := range formatted {
				if s, ok := v.(string); ok {
					meiliHit.Formatted[k] = s
				}
			}
		}

		result.Hits = append(result.Hits, meiliHit)
	}

	return result, nil
}

// IndexDocuments indexes a batch of transcript documents
func (m *MeiliClient) IndexDocuments(docs []TranscriptDocument) error {
	if m == nil || len(docs) == 0 {
		return nil
	}

	_, err := m.index.AddDocuments(docs, "documentId")
	return err
}

// DeleteDocuments removes a batch of documents by id. Used when a session
// is deleted or re-keyed by the runtime and its transcript is dropped.
func (m *MeiliClient) DeleteDocuments(documentIDs []string) error {
	if m == nil {
		return nil
	}

	for _, id := range documentIDs {
		if _, err := m.index.DeleteDocument(id); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func escapeFilter(value string) string {
	// Escape backslashes and quotes
	result := ""
	for _, c := range value {
		switch c {
		case '\\':
			result += "\\\\"
		case '"':
			result += "\\\""
		default:
			result += string(c)
		}
	}
	return result
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	}
	return 0
}
