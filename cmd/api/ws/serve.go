package ws

import (
	"github.com/gin-gonic/gin"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
)

// Serve upgrades the request and attaches the connection to the hub.
// Admin connections additionally receive pending-queue events.
func Serve(a *app.App, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		isAdmin := false
		if v, ok := c.Get("user"); ok {
			if u, ok := v.(authpkg.AuthUser); ok {
				isAdmin = u.HasRole("admin")
			}
		}
		conn, err := Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, isAdmin)
		hub.Register(client)
		go client.WritePump(c.Request.Context())
		client.ReadPump()
	}
}
