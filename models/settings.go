package models

// UserSettings represents the full console settings structure
// This matches the TypeScript UserSettings interface from frontend/app/lib/config/settings.ts
type UserSettings struct {
	Preferences Preferences `json:"preferences"`
	Chat        Chat        `json:"chat"`
	Storage     Storage     `json:"storage"`
}

type Preferences struct {
	Theme       string `json:"theme"`
	DefaultView string `json:"defaultView"`
	LogLevel    string `json:"logLevel,omitempty"`
	UserEmail   string `json:"userEmail,omitempty"`
}

type Chat struct {
	AutoTitle       bool   `json:"autoTitle"`
	DefaultAgentID  string `json:"defaultAgentId,omitempty"`
	HistoryPageSize int    `json:"historyPageSize"`
}

type Storage struct {
	AutoBackup      bool `json:"autoBackup"`
	MaxUploadSizeMB int  `json:"maxUploadSizeMb"`
}
