package departments

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
)

// Department groups users and assets.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// List returns all departments ordered by name.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "departments": []Department{}})
			return
		}
		rows, err := a.DB.Query(c.Request.Context(), `select id::text, name, created_at from departments order by name`)
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []Department{}
		for rows.Next() {
			var d Department
			if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt); err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			out = append(out, d)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "departments": out})
	}
}

// Create adds a department. Admin only; routes enforce the role.
func Create(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "name is required", nil)
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "name is required", nil)
			return
		}
		d := Department{Name: in.Name}
		if a.DB == nil {
			c.JSON(http.StatusCreated, gin.H{"success": true, "department": d})
			return
		}
		if err := a.DB.QueryRow(c.Request.Context(),
			`insert into departments (name) values ($1) on conflict (name) do update set name = excluded.name returning id::text, created_at`,
			d.Name).Scan(&d.ID, &d.CreatedAt); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "department": d})
	}
}

// Delete removes a department. Assets keep their rows; the reference
// is nulled by the schema.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		ct, err := a.DB.Exec(c.Request.Context(), `delete from departments where id = $1`, c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if ct.RowsAffected() == 0 {
			app.AbortError(c, http.StatusNotFound, "not_found", "department not found", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
