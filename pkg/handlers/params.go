package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/apiary-engine/pkg/models"
)

// ParseRealm extracts the acting guild and user from the request path.
// Returns false after writing an error response when either is not a
// positive integer.
// Expects path parameters: gid, uid
func ParseRealm(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.Realm, bool) {
	guildID, ok := parseSnowflake(w, r, "gid", "invalid_guild_id", "Invalid guild ID", logger)
	if !ok {
		return models.Realm{}, false
	}
	userID, ok := parseSnowflake(w, r, "uid", "invalid_user_id", "Invalid user ID", logger)
	if !ok {
		return models.Realm{}, false
	}
	return models.Realm{GuildID: guildID, UserID: userID}, true
}

// ParseBeeID extracts and validates the bee ID from the request path.
// Expects path parameter: bid
func ParseBeeID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "bid", "invalid_bee_id", "Invalid bee ID format", logger)
}

// ParseHiveID extracts and validates the hive ID from the request path.
// Expects path parameter: hid
func ParseHiveID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "hid", "invalid_hive_id", "Invalid hive ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// parseSnowflake parses a chat-platform numeric ID.
func parseSnowflake(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(pathParam), 10, 64)
	if err != nil || id <= 0 {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return id, true
}
