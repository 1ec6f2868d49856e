package bills

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
)

// BillFile is a scanned bill attached to an asset.
type BillFile struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Mime     string `json:"mime"`
}

// Only document and image uploads are accepted for bills.
var allowedMime = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

// List returns the files attached to an asset.
func List(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "files": []BillFile{}})
			return
		}
		const q = `select id::text, filename, bytes, mime from bill_files where asset_id = $1 order by uploaded_at asc`
		rows, err := a.DB.Query(c.Request.Context(), q, c.Param("id"))
		if err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []BillFile{}
		for rows.Next() {
			var f BillFile
			if err := rows.Scan(&f.ID, &f.Filename, &f.Bytes, &f.Mime); err != nil {
				app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			out = append(out, f)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "files": out})
	}
}

// Upload stores a bill scan in the object store and records it.
func Upload(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil || a.M == nil {
			c.JSON(http.StatusCreated, gin.H{"success": true, "id": "temp"})
			return
		}
		f, header, err := c.Request.FormFile("file")
		if err != nil {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "file required", nil)
			return
		}
		defer f.Close()
		safeName := sanitizeFilename(header.Filename)
		if safeName == "" {
			safeName = "bill"
		}
		ct := header.Header.Get("Content-Type")
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(header.Filename))
		}
		if !allowedMime[ct] {
			app.AbortError(c, http.StatusBadRequest, "invalid_request", "only pdf and image uploads are accepted", nil)
			return
		}
		var uploader string
		if v, ok := c.Get("user"); ok {
			if u, ok := v.(authpkg.AuthUser); ok {
				uploader = u.ID
			}
		}
		if uploader == "" {
			app.AbortError(c, http.StatusUnauthorized, "unauthenticated", "login required", nil)
			return
		}

		key := uuid.New().String() + "-" + safeName
		if _, err := a.M.PutObject(c.Request.Context(), a.Cfg.MinIOBucket, key, f, header.Size, minio.PutObjectOptions{ContentType: ct}); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		const q = `insert into bill_files (asset_id, uploaded_by, object_key, filename, bytes, mime) values ($1, $2, $3, $4, $5, $6) returning id::text`
		var id string
		if err := a.DB.QueryRow(c.Request.Context(), q, c.Param("id"), uploader, key, header.Filename, header.Size, ct).Scan(&id); err != nil {
			app.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "id": id})
	}
}

// Get streams a bill file back to the client. Only the filesystem
// store serves downloads directly; MinIO deployments use the bucket.
func Get(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "id": c.Param("fileID")})
			return
		}
		const q = `select object_key, filename, mime from bill_files where id = $1 and asset_id = $2`
		var key, fn, ct string
		if err := a.DB.QueryRow(c.Request.Context(), q, c.Param("fileID"), c.Param("id")).Scan(&key, &fn, &ct); err != nil {
			app.AbortError(c, http.StatusNotFound, "not_found", "file not found", nil)
			return
		}
		if fs, ok := a.M.(*app.FsObjectStore); ok {
			root := filepath.Join(fs.Base, a.Cfg.MinIOBucket)
			path := filepath.Clean(filepath.Join(root, key))
			if rel, err := filepath.Rel(root, path); err != nil || strings.HasPrefix(rel, "..") {
				app.AbortError(c, http.StatusBadRequest, "invalid_request", "invalid path", nil)
				return
			}
			b, err := os.ReadFile(path)
			if err != nil {
				app.AbortError(c, http.StatusNotFound, "not_found", "file not found", nil)
				return
			}
			if ct == "" {
				ct = mime.TypeByExtension(filepath.Ext(fn))
			}
			c.Writer.Header().Set("Content-Type", ct)
			c.Writer.Header().Set("Content-Disposition", "attachment; filename=\""+strings.ReplaceAll(fn, "\"", "")+"\"")
			_, _ = c.Writer.Write(b)
			return
		}
		c.JSON(http.StatusNotImplemented, gin.H{"error": "download not implemented"})
	}
}

// Delete removes the record and the stored object.
func Delete(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.DB == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}
		const q = `delete from bill_files where id = $1 and asset_id = $2 returning object_key`
		var key string
		if err := a.DB.QueryRow(c.Request.Context(), q, c.Param("fileID"), c.Param("id")).Scan(&key); err != nil {
			app.AbortError(c, http.StatusNotFound, "not_found", "file not found", nil)
			return
		}
		if a.M != nil {
			_ = a.M.RemoveObject(c.Request.Context(), a.Cfg.MinIOBucket, key, minio.RemoveObjectOptions{})
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// sanitizeFilename removes path separators and dot segments and restricts to a
// conservative character set, preserving the extension when possible.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "")
	b := strings.Builder{}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := strings.TrimSpace(b.String())
	out = strings.TrimLeft(out, ".")
	return out
}
