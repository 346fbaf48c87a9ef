package handler

import (
	"net/http"
	"time"

	"github.com/edupaila/community-server-go/internal/httputil"
	"github.com/edupaila/community-server-go/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatAccount(a *model.Account) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"email":      a.Email,
		"name":       a.DisplayName,
		"role":       a.Role,
		"verifiedAt": formatTime(a.VerifiedAt),
	}
}

func formatBroadcast(b model.Broadcast) map[string]any {
	return map[string]any{
		"id":              b.ID,
		"subject":         b.Subject,
		"content":         b.Body,
		"mediaLinks":      []string(b.MediaLinks),
		"attachmentNames": []string(b.AttachmentNames),
		"recipients":      []string(b.Recipients),
		"recipientCount":  len(b.Recipients),
		"sentBy":          b.SentBy,
		"createdAt":       b.CreatedAt.Format(time.RFC3339),
	}
}
