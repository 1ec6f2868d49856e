package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
)

// Notification is one inbox entry for a user.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	AssetID     *string   `json:"assetId,omitempty"`
	BillNo      string    `json:"billNo,omitempty"`
	ActorID     *string   `json:"actorId,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Job is the queue payload consumed by the worker.
type Job struct {
	Type string       `json:"type"`
	Data Notification `json:"data"`
}

// Enqueue pushes a notify job onto the jobs queue. Delivery is best
// effort; failures are logged and never surfaced to the caller.
func Enqueue(ctx context.Context, q *redis.Client, n Notification) {
	if q == nil || n.RecipientID == "" {
		return
	}
	b, err := json.Marshal(Job{Type: "notify", Data: n})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("marshal notify job")
		return
	}
	if err := q.RPush(ctx, "jobs", b).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("recipient", n.RecipientID).Msg("enqueue notify job")
	}
}

// List returns the caller's notifications, newest first.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "notifications": []Notification{}})
			return
		}
		const q = `select id::text, recipient_id::text, type, title, message, asset_id::text, bill_no, actor_id::text, read, created_at
from notifications where recipient_id = $1 order by created_at desc limit 100`
		rows, err := a.DB.Query(c.Request.Context(), q, u.ID)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []Notification{}
		for rows.Next() {
			var n Notification
			if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.AssetID, &n.BillNo, &n.ActorID, &n.Read, &n.CreatedAt); err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			out = append(out, n)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "notifications": out})
	}
}

// UnreadCount returns the caller's unread notification count.
func UnreadCount(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "count": 0})
			return
		}
		var count int
		if err := a.DB.QueryRow(c.Request.Context(),
			`select count(*) from notifications where recipient_id = $1 and not read`, u.ID).Scan(&count); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
	}
}

// MarkRead marks one of the caller's notifications as read.
func MarkRead(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		ct, err := a.DB.Exec(c.Request.Context(),
			`update notifications set read = true where id = $1 and recipient_id = $2`, c.Param("id"), u.ID)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if ct.RowsAffected() == 0 {
			app.AbortError(c, http.StatusNotFound, "not_found", "notification not found", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// MarkAllRead marks every unread notification of the caller as read.
func MarkAllRead(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		if _, err := a.DB.Exec(c.Request.Context(),
			`update notifications set read = true where recipient_id = $1 and not read`, u.ID); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func currentUser(c *gin.Context) authpkg.AuthUser {
	if v, ok := c.Get("user"); ok {
		if u, ok := v.(authpkg.AuthUser); ok {
			return u
		}
	}
	return authpkg.AuthUser{}
}
