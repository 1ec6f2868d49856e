package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
)

// adminOnly mirrors the WS hub's visibility rule: pending-queue churn
// is not delivered to officer connections.
var adminOnly = map[string]bool{
	"update_requested": true,
}

func isAdmin(c *gin.Context) bool {
	if v, ok := c.Get("user"); ok {
		if u, ok := v.(authpkg.AuthUser); ok {
			return u.HasRole("admin")
		}
	}
	return false
}

// Stream broadcasts asset events over Server-Sent Events. Clients can
// resume from the Last-Event-ID header; heartbeat comments keep idle
// connections alive through proxies.
func Stream(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.Status(http.StatusOK)
			return
		}
		admin := isAdmin(c)
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}

		ctx := c.Request.Context()

		var last int64
		if id := c.GetHeader("Last-Event-ID"); id != "" {
			if n, err := strconv.ParseInt(id, 10, 64); err == nil {
				last = n
			}
		}

		send := func(since int64) int64 {
			rows, err := a.DB.Query(ctx,
				`select id, asset_id::text, event_type, payload from asset_events where id > $1 order by id asc limit 500`, since)
			if err != nil {
				return since
			}
			defer rows.Close()
			for rows.Next() {
				var id int64
				var assetID *string
				var typ string
				var payload []byte
				if err := rows.Scan(&id, &assetID, &typ, &payload); err != nil {
					continue
				}
				if adminOnly[typ] && !admin {
					// The cursor still advances past withheld events.
					since = id
					continue
				}
				ev := Event{ID: id, AssetID: assetID, Type: typ, Payload: payload}
				b, _ := json.Marshal(ev)
				fmt.Fprintf(c.Writer, "id: %d\n", id)
				fmt.Fprintf(c.Writer, "event: %s\n", typ)
				fmt.Fprintf(c.Writer, "data: %s\n\n", b)
				flusher.Flush()
				since = id
			}
			return since
		}

		last = send(last)

		poll := time.NewTicker(time.Second)
		heart := time.NewTicker(25 * time.Second)
		defer poll.Stop()
		defer heart.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				last = send(last)
			case <-heart.C:
				fmt.Fprint(c.Writer, ": heartbeat\n\n")
				flusher.Flush()
			}
		}
	}
}

// History returns the recent audit trail for one asset.
func History(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "events": []Event{}})
			return
		}
		rows, err := a.DB.Query(c.Request.Context(),
			`select id, asset_id::text, event_type, actor_id::text, payload, created_at
from asset_events where asset_id = $1 order by id desc limit 100`, c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []Event{}
		for rows.Next() {
			var ev Event
			var payload []byte
			if err := rows.Scan(&ev.ID, &ev.AssetID, &ev.Type, &ev.ActorID, &payload, &ev.CreatedAt); err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			ev.Payload = payload
			out = append(out, ev)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "events": out})
	}
}
