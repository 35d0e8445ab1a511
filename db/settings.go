package db

import (
	"database/sql"
	"os"
	"strconv"

	"github.com/tidewell/agentdeck/models"
)

// Default settings
var defaultSettings = map[string]string{
	"preferences_theme":        "auto",
	"preferences_default_view": "sessions",
	"preferences_log_level":    "info",
	"chat_auto_title":          "true",
	"chat_history_page_size":   "50",
	"storage_auto_backup":      "false",
	"storage_max_upload_size":  "50",
}

// GetSetting retrieves a setting by key
func GetSetting(key string) (string, error) {
	var value string
	err := GetDB().QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		if defaultValue, ok := defaultSettings[key]; ok {
			return defaultValue, nil
		}
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting updates or creates a setting
func SetSetting(key, value string) error {
	_, err := GetDB().Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, NowMs())
	return err
}

// DeleteSetting removes a setting
func DeleteSetting(key string) error {
	_, err := GetDB().Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// GetAllSettings retrieves all settings
func GetAllSettings() (map[string]string, error) {
	// Start with defaults
	settings := make(map[string]string)
	for k, v := range defaultSettings {
		settings[k] = v
	}

	// Override with stored settings
	rows, err := GetDB().Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}

	return settings, nil
}

// UpdateSettings updates multiple settings at once
func UpdateSettings(settings map[string]string) error {
	return Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO settings (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := NowMs()
		for key, value := range settings {
			if _, err := stmt.Exec(key, value, now); err != nil {
				return err
			}
		}

		return nil
	})
}

// ResetSettings removes all non-default settings
func ResetSettings() error {
	// Keep only default settings
	keys := make([]string, 0, len(defaultSettings))
	for k := range defaultSettings {
		keys = append(keys, k)
	}

	// Build query with placeholders
	placeholders := ""
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = k
	}

	query := "DELETE FROM settings WHERE key NOT IN (" + placeholders + ")"
	_, err := GetDB().Exec(query, args...)
	return err
}

// LoadUserSettings loads settings from DB and converts to structured UserSettings
func LoadUserSettings() (*models.UserSettings, error) {
	// Load all settings once to avoid N+1 queries
	allSettings, err := GetAllSettings()
	if err != nil {
		return nil, err
	}

	// Helper to pick from pre-loaded settings map: DB > env > default
	pickFromMap := func(dbKey, envKey, defaultValue string) string {
		if val, ok := allSettings[dbKey]; ok && val != "" {
			return val
		}
		if envKey != "" {
			if envVal := os.Getenv(envKey); envVal != "" {
				return envVal
			}
		}
		return defaultValue
	}

	preferences := models.Preferences{
		Theme:       pickFromMap("preferences_theme", "", "auto"),
		DefaultView: pickFromMap("preferences_default_view", "", "sessions"),
		LogLevel:    pickFromMap("preferences_log_level", "", "info"),
	}

	if email := pickFromMap("preferences_user_email", "", ""); email != "" {
		preferences.UserEmail = email
	}

	chat := models.Chat{
		AutoTitle:       pickFromMap("chat_auto_title", "", "true") != "false",
		DefaultAgentID:  pickFromMap("chat_default_agent_id", "", ""),
		HistoryPageSize: 50,
	}

	if sizeStr := pickFromMap("chat_history_page_size", "", "50"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			chat.HistoryPageSize = size
		}
	}

	storage := models.Storage{
		AutoBackup:      pickFromMap("storage_auto_backup", "", "false") == "true",
		MaxUploadSizeMB: 50,
	}

	if sizeStr := pickFromMap("storage_max_upload_size", "", "50"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			storage.MaxUploadSizeMB = size
		}
	}

	return &models.UserSettings{
		Preferences: preferences,
		Chat:        chat,
		Storage:     storage,
	}, nil
}

// SaveUserSettings converts UserSettings to flat key-value pairs and saves to DB.
// Optional keys submitted blank are removed, so clearing a field round-trips.
func SaveUserSettings(settings *models.UserSettings) error {
	updates := make(map[string]string)

	// Preferences
	updates["preferences_theme"] = settings.Preferences.Theme
	updates["preferences_default_view"] = settings.Preferences.DefaultView
	if settings.Preferences.LogLevel != "" {
		updates["preferences_log_level"] = settings.Preferences.LogLevel
	}
	if settings.Preferences.UserEmail != "" {
		updates["preferences_user_email"] = settings.Preferences.UserEmail
	} else if err := DeleteSetting("preferences_user_email"); err != nil {
		return err
	}

	// Chat
	updates["chat_auto_title"] = strconv.FormatBool(settings.Chat.AutoTitle)
	if settings.Chat.DefaultAgentID != "" {
		updates["chat_default_agent_id"] = settings.Chat.DefaultAgentID
	} else if err := DeleteSetting("chat_default_agent_id"); err != nil {
		return err
	}
	if settings.Chat.HistoryPageSize > 0 {
		updates["chat_history_page_size"] = strconv.Itoa(settings.Chat.HistoryPageSize)
	}

	// Storage
	updates["storage_auto_backup"] = strconv.FormatBool(settings.Storage.AutoBackup)
	if settings.Storage.MaxUploadSizeMB > 0 {
		updates["storage_max_upload_size"] = strconv.Itoa(settings.Storage.MaxUploadSizeMB)
	}

	return UpdateSettings(updates)
}
