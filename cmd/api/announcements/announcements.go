package announcements

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
	"github.com/assetflow/assetflow-go/cmd/api/notifications"
	wspkg "github.com/assetflow/assetflow-go/cmd/api/ws"
)

var sanitize = bluemonday.StrictPolicy()

// Announcement is a broadcast message from an admin to every user.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedBy *string   `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type createReq struct {
	Title   string `json:"title" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// Create stores an announcement and fans out a notification to every
// user. Fan-out is queued; a slow or down queue never fails the write.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createReq
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "title and message are required", nil)
			return
		}
		in.Title = strings.TrimSpace(sanitize.Sanitize(in.Title))
		in.Message = strings.TrimSpace(sanitize.Sanitize(in.Message))
		if in.Title == "" || in.Message == "" {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "title and message are required", nil)
			return
		}
		ann := Announcement{Title: in.Title, Message: in.Message}
		var actorID string
		if v, ok := c.Get("user"); ok {
			if u, ok := v.(authpkg.AuthUser); ok && u.ID != "" {
				actorID = u.ID
				ann.CreatedBy = &actorID
			}
		}
		if a.DB == nil {
			c.JSON(http.StatusCreated, gin.H{"success": true, "announcement": ann})
			return
		}
		if err := a.DB.QueryRow(c.Request.Context(),
			`insert into announcements (title, message, created_by) values ($1, $2, $3) returning id::text, created_at`,
			ann.Title, ann.Message, ann.CreatedBy).Scan(&ann.ID, &ann.CreatedAt); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}

		fanOut(c, a, ann, actorID)
		wspkg.PublishEvent(c.Request.Context(), a.Q, wspkg.Event{Type: "announcement",
			Data: gin.H{"id": ann.ID, "title": ann.Title}})
		c.JSON(http.StatusCreated, gin.H{"success": true, "announcement": ann})
	}
}

func fanOut(c *gin.Context, a *app.App, ann Announcement, actorID string) {
	rows, err := a.DB.Query(c.Request.Context(), `select id::text from users`)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("announcement fan-out query")
		return
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		if id == actorID {
			continue
		}
		n := notifications.Notification{
			RecipientID: id,
			Type:        "announcement",
			Title:       ann.Title,
			Message:     ann.Message,
		}
		if actorID != "" {
			actor := actorID
			n.ActorID = &actor
		}
		notifications.Enqueue(c.Request.Context(), a.Q, n)
		count++
	}
	log.Ctx(c.Request.Context()).Info().Int("recipients", count).Str("announcement_id", ann.ID).Msg("announcement fan-out")
}

// List returns recent announcements, newest first.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "announcements": []Announcement{}})
			return
		}
		rows, err := a.DB.Query(c.Request.Context(),
			`select id::text, title, message, created_by::text, created_at from announcements order by created_at desc limit 50`)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []Announcement{}
		for rows.Next() {
			var ann Announcement
			if err := rows.Scan(&ann.ID, &ann.Title, &ann.Message, &ann.CreatedBy, &ann.CreatedAt); err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			out = append(out, ann)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "announcements": out})
	}
}
