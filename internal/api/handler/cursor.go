package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/google/uuid"
)

// DecodeJobCursor parses the opaque next_cursor value of a job listing.
func DecodeJobCursor(cursorStr string) (*service.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return nil, fmt.Errorf("invalid job id in cursor: %w", err)
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &service.JobCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		JobID:     parts[1],
	}, nil
}

func EncodeJobCursor(cursor *service.JobCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
