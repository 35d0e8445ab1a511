package chat

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tidewell/agentdeck/db"
)

func TestExportFilename_UsesSanitizedTitle(t *testing.T) {
	row := &db.ChatSession{
		ID:    "0b9e7c12",
		Title: db.StringPtr(sql.NullString{String: "Plan: Q3 roadmap?", Valid: true}),
	}

	got := ExportFilename(row)
	want := fmt.Sprintf("Plan_ Q3 roadmap_-%s.tar.gz", time.Now().UTC().Format("20060102"))
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestExportFilename_FallsBackToSessionID(t *testing.T) {
	tests := []struct {
		name  string
		title *string
	}{
		{"no title", nil},
		{"empty title", db.StringPtr(sql.NullString{String: "", Valid: true})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := &db.ChatSession{ID: "0b9e7c12", Title: tt.title}

			got := ExportFilename(row)
			if !strings.HasPrefix(got, "0b9e7c12-") {
				t.Errorf("expected filename to start with the session id, got %q", got)
			}
			if !strings.HasSuffix(got, ".tar.gz") {
				t.Errorf("expected .tar.gz suffix, got %q", got)
			}
		})
	}
}
