package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/assetflow/assetflow-go/cmd/api/announcements"
	apppkg "github.com/assetflow/assetflow-go/cmd/api/app"
	assetspkg "github.com/assetflow/assetflow-go/cmd/api/assets"
	authpkg "github.com/assetflow/assetflow-go/cmd/api/auth"
	"github.com/assetflow/assetflow-go/cmd/api/bills"
	"github.com/assetflow/assetflow-go/cmd/api/departments"
	"github.com/assetflow/assetflow-go/cmd/api/events"
	"github.com/assetflow/assetflow-go/cmd/api/notifications"
	"github.com/assetflow/assetflow-go/cmd/api/reports"
	"github.com/assetflow/assetflow-go/cmd/api/updates"
	wspkg "github.com/assetflow/assetflow-go/cmd/api/ws"
	"github.com/assetflow/assetflow-go/internal/ratelimit"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	_ = godotenv.Load()
	cfg := apppkg.GetConfig()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()

	// Migrate (embedded goose) using pgx stdlib driver
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("goose dialect")
	}
	sqldb, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("sql open for goose")
	}
	defer sqldb.Close()
	if err := goose.UpContext(ctx, sqldb, "migrations"); err != nil {
		log.Fatal().Err(err).Msg("migrate up")
	}

	// JWKS-backed Keyfunc for OIDC mode
	var keyf jwt.Keyfunc
	if cfg.JWKSURL != "" {
		httpClient := &http.Client{Timeout: 10 * time.Second}
		set, err := jwk.Fetch(ctx, cfg.JWKSURL, jwk.WithHTTPClient(httpClient))
		if err != nil {
			log.Fatal().Err(err).Str("jwks_url", cfg.JWKSURL).Msg("fetch jwks")
		}
		setPtr := &set
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				if newSet, err := jwk.Fetch(context.Background(), cfg.JWKSURL, jwk.WithHTTPClient(httpClient)); err == nil {
					*setPtr = newSet
				}
			}
		}()
		keyf = func(t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			if kid != "" {
				if key, ok := (*setPtr).LookupKeyID(kid); ok {
					var pub any
					if err := key.Raw(&pub); err != nil {
						return nil, err
					}
					return pub, nil
				}
			}
			it := (*setPtr).Iterate(context.Background())
			if it.Next(context.Background()) {
				pair := it.Pair()
				if key, ok := pair.Value.(jwk.Key); ok {
					var pub any
					if err := key.Raw(&pub); err != nil {
						return nil, err
					}
					return pub, nil
				}
			}
			return nil, fmt.Errorf("no jwk for kid: %s", kid)
		}
	}

	var mc *minio.Client
	if cfg.MinIOEndpoint != "" {
		mc, err = minio.New(cfg.MinIOEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccess, cfg.MinIOSecret, ""),
			Secure: cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("minio init")
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
		defer rdb.Close()
	}

	var store apppkg.ObjectStore
	if mc != nil {
		store = mc
	} else if cfg.FileStorePath != "" {
		if err := os.MkdirAll(cfg.FileStorePath, 0o755); err != nil {
			log.Fatal().Err(err).Str("path", cfg.FileStorePath).Msg("create filestore path")
		}
		store = &apppkg.FsObjectStore{Base: cfg.FileStorePath}
	}

	if cfg.AuthMode == "local" {
		if err := seedLocalAdmin(ctx, pool, cfg.AdminPassword); err != nil {
			log.Error().Err(err).Msg("seed local admin")
		}
	}

	a := apppkg.NewApp(cfg, pool, keyf, store, rdb)

	hub := wspkg.NewHub(rdb)
	go hub.Run(ctx)

	registerRoutes(a, hub)

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        a.R,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen")
	}
}

func registerRoutes(a *apppkg.App, hub *wspkg.Hub) {
	a.R.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	a.R.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if a.Cfg.AuthMode == "local" {
		a.R.POST("/login", authpkg.Login(a))
		a.R.POST("/logout", authpkg.Logout())
	}

	auth := a.R.Group("/")
	auth.Use(authpkg.Middleware(a))
	auth.GET("/me", authpkg.Me)

	// Assets
	auth.GET("/assets", assetspkg.List(a))
	auth.POST("/assets", authpkg.RequireRole("officer"), assetspkg.Create(a))
	auth.GET("/assets/:id", assetspkg.Get(a))
	auth.DELETE("/assets/:id", authpkg.RequireRole("admin"), assetspkg.Delete(a))

	// Update request workflow. Submissions are additionally rate
	// limited per user across replicas.
	submitRL := ratelimit.New(a.Q, 30, time.Minute, "submit")
	auth.POST("/assets/:id/update-request", authpkg.RequireRole("officer"),
		submitRL.Middleware(func(c *gin.Context) string {
			if v, ok := c.Get("user"); ok {
				if u, ok := v.(authpkg.AuthUser); ok && u.ID != "" {
					return u.ID
				}
			}
			return c.ClientIP()
		}),
		updates.Submit(a))
	auth.GET("/update-requests/pending", authpkg.RequireRole("admin"), updates.ListPending(a))
	auth.POST("/assets/:id/update-request/approve", authpkg.RequireRole("admin"), updates.Approve(a))
	auth.POST("/assets/:id/update-request/reject", authpkg.RequireRole("admin"), updates.Reject(a))

	// Bill attachments
	auth.GET("/assets/:id/bills", bills.List(a))
	auth.POST("/assets/:id/bills", authpkg.RequireRole("officer"), bills.Upload(a))
	auth.GET("/assets/:id/bills/:fileID", bills.Get(a))
	auth.DELETE("/assets/:id/bills/:fileID", authpkg.RequireRole("admin"), bills.Delete(a))

	// Notifications
	auth.GET("/notifications", notifications.List(a))
	auth.GET("/notifications/unread-count", notifications.UnreadCount(a))
	auth.POST("/notifications/:id/read", notifications.MarkRead(a))
	auth.POST("/notifications/read-all", notifications.MarkAllRead(a))

	// Announcements
	auth.GET("/announcements", announcements.List(a))
	auth.POST("/announcements", authpkg.RequireRole("admin"), announcements.Create(a))

	// Departments
	auth.GET("/departments", departments.List(a))
	auth.POST("/departments", authpkg.RequireRole("admin"), departments.Create(a))
	auth.DELETE("/departments/:id", authpkg.RequireRole("admin"), departments.Delete(a))

	// Reports
	auth.GET("/reports/summary", authpkg.RequireRole("admin"), reports.Summary(a))
	auth.POST("/reports/export/csv", authpkg.RequireRole("admin"), reports.ExportCSV(a))
	auth.GET("/reports/export/xlsx", authpkg.RequireRole("admin"), reports.ExportXLSX(a))

	// Event streams
	auth.GET("/events", events.Stream(a))
	auth.GET("/assets/:id/events", events.History(a))
	auth.GET("/ws", wspkg.Serve(a, hub))
}

// seedLocalAdmin creates the bootstrap admin account when running with
// local auth and none exists yet.
func seedLocalAdmin(ctx context.Context, pool *pgxpool.Pool, password string) error {
	var exists bool
	if err := pool.QueryRow(ctx, "select exists(select 1 from users where lower(username)='admin')").Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}
	if password == "" {
		password = "admin"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	var id string
	if err := pool.QueryRow(ctx,
		`insert into users (username, email, display_name, password_hash) values ('admin', 'admin@localhost', 'Administrator', $1) returning id::text`,
		string(hash)).Scan(&id); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx,
		`insert into user_roles (user_id, role_id) select $1, id from roles where name in ('admin', 'officer') on conflict do nothing`, id); err != nil {
		return err
	}
	log.Info().Msg("seeded local admin user")
	return nil
}
