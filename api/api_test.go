package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/workspace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

// =============================================================================
// Response Envelope Tests
// =============================================================================

func TestRespondList_NilBecomesEmptyArray(t *testing.T) {
	c, w := testContext()

	RespondList[string](c, nil, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != `{"data":[]}` {
		t.Errorf("expected empty array payload, got %s", got)
	}
}

func TestRespondList_CursorPagination(t *testing.T) {
	c, w := testContext()

	cursor := "1700000000000"
	RespondList(c, []string{"a", "b"}, &Pagination{NextCursor: &cursor, HasMore: true})

	var resp ListResponse[string]
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("expected 2 items, got %d", len(resp.Data))
	}
	if resp.Pagination == nil || !resp.Pagination.HasMore {
		t.Fatal("expected pagination with hasMore")
	}
	if resp.Pagination.NextCursor == nil || *resp.Pagination.NextCursor != cursor {
		t.Errorf("expected cursor %s, got %v", cursor, resp.Pagination.NextCursor)
	}
}

func TestRespondValidationError_Shape(t *testing.T) {
	c, w := testContext()

	RespondValidationError(c, "Validation failed", []ErrorDetail{
		{Field: "agentId", Message: "agentId is required"},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error.Code != ErrCodeValidation {
		t.Errorf("expected code %s, got %s", ErrCodeValidation, resp.Error.Code)
	}
	if len(resp.Error.Details) != 1 || resp.Error.Details[0].Field != "agentId" {
		t.Errorf("unexpected details: %+v", resp.Error.Details)
	}
}

func TestRespondCreated_SetsLocation(t *testing.T) {
	c, w := testContext()

	RespondCreated(c, gin.H{"id": "s-1"}, "/api/sessions/s-1")

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/api/sessions/s-1" {
		t.Errorf("expected Location header, got %q", got)
	}
}

func TestRespondConflict_Code(t *testing.T) {
	c, w := testContext()

	RespondConflict(c, "A turn is already streaming on this session")

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error.Code != ErrCodeConflict {
		t.Errorf("expected code %s, got %s", ErrCodeConflict, resp.Error.Code)
	}
}

// =============================================================================
// History Projection Tests
// =============================================================================

func TestHistoryMessages_PassesContentThrough(t *testing.T) {
	model := "claude-sonnet-4"
	rows := []db.ChatMessage{
		{
			ID:        "m-1",
			SessionID: "s-1",
			Role:      "assistant",
			Content:   `[{"type":"text","text":"hello"}]`,
			Model:     &model,
			CreatedAt: 1700000000000,
		},
	}

	out := historyMessages(rows)
	if len(out) != 1 {
		t.Fatalf("expected 1 message, got %d", len(out))
	}
	if string(out[0].Content) != `[{"type":"text","text":"hello"}]` {
		t.Errorf("expected stored block JSON untouched, got %s", out[0].Content)
	}
	if out[0].Model == nil || *out[0].Model != model {
		t.Errorf("expected model %s, got %v", model, out[0].Model)
	}
}

func TestHistoryMessages_InvalidContentBecomesEmpty(t *testing.T) {
	rows := []db.ChatMessage{
		{ID: "m-1", Role: "assistant", Content: `{broken`},
		{ID: "m-2", Role: "user", Content: ``},
	}

	out := historyMessages(rows)
	for _, msg := range out {
		if string(msg.Content) != "[]" {
			t.Errorf("message %s: expected [] for unreadable content, got %s", msg.ID, msg.Content)
		}
	}
}

func TestHistoryMessages_EmptyInput(t *testing.T) {
	out := historyMessages(nil)
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty slice, got %v", out)
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestSafeSubstring(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short unchanged", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"truncated", "hello world", 5, "hello"},
		{"multibyte not split", "héllo wörld", 7, "héllo w"},
		{"cjk", "你好世界", 2, "你好"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := safeSubstring(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("safeSubstring(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestResolveAddDirs_NoWorkspace(t *testing.T) {
	prev := workspaceSvc
	workspaceSvc = nil
	defer func() { workspaceSvc = prev }()

	dirs := []string{"workspace", "/abs/path"}
	out := resolveAddDirs(dirs)
	if len(out) != 2 || out[0] != "workspace" || out[1] != "/abs/path" {
		t.Errorf("expected passthrough without a workspace service, got %v", out)
	}
}

func TestResolveAddDirs_MapsWorkspaceToRoot(t *testing.T) {
	ws, err := workspace.NewService(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.NewService: %v", err)
	}

	prev := workspaceSvc
	workspaceSvc = ws
	defer func() { workspaceSvc = prev }()

	out := resolveAddDirs([]string{"workspace", "workspace/", "/abs/path"})
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	if out[0] != ws.Root() || out[1] != ws.Root() {
		t.Errorf("expected workspace entries resolved to %s, got %v", ws.Root(), out[:2])
	}
	if out[2] != "/abs/path" {
		t.Errorf("expected absolute path untouched, got %s", out[2])
	}
}

func TestResolveAddDirs_Empty(t *testing.T) {
	if out := resolveAddDirs(nil); out != nil {
		t.Errorf("expected nil passthrough, got %v", out)
	}
}
