package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/models"
)

var settingsLogger = log.GetLogger("ApiSettings")

// GetSettings handles GET /api/settings
func GetSettings(c *gin.Context) {
	settings, err := db.LoadUserSettings()
	if err != nil {
		settingsLogger.Error().Err(err).Msg("failed to load settings")
		RespondInternalError(c, "Failed to load settings")
		return
	}

	RespondData(c, settings)
}

// UpdateSettings handles PUT /api/settings
// Persists the settings and applies the log level without a restart.
func UpdateSettings(c *gin.Context) {
	var body models.UserSettings
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	if err := db.SaveUserSettings(&body); err != nil {
		settingsLogger.Error().Err(err).Msg("failed to save settings")
		RespondInternalError(c, "Failed to save settings")
		return
	}

	if body.Preferences.LogLevel != "" {
		log.SetLevel(body.Preferences.LogLevel)
		settingsLogger.Info().Str("level", body.Preferences.LogLevel).Msg("log level updated")
	}

	settings, err := db.LoadUserSettings()
	if err != nil {
		RespondData(c, &body)
		return
	}
	RespondData(c, settings)
}

// ResetSettings handles POST /api/settings
func ResetSettings(c *gin.Context) {
	if err := db.ResetSettings(); err != nil {
		settingsLogger.Error().Err(err).Msg("failed to reset settings")
		RespondInternalError(c, "Failed to reset settings")
		return
	}

	settings, err := db.LoadUserSettings()
	if err != nil {
		RespondInternalError(c, "Failed to load settings")
		return
	}

	if settings.Preferences.LogLevel != "" {
		log.SetLevel(settings.Preferences.LogLevel)
	}

	RespondData(c, settings)
}
