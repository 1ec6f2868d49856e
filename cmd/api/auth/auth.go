package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	app "github.com/assetflow/assetflow-go/cmd/api/app"
)

// AuthUser represents the authenticated user.
type AuthUser struct {
	ID           string   `json:"id"`
	ExternalID   string   `json:"external_id"`
	Email        string   `json:"email"`
	DisplayName  string   `json:"display_name"`
	DepartmentID string   `json:"department_id,omitempty"`
	Roles        []string `json:"roles"`
}

func (u AuthUser) GetRoles() []string { return u.Roles }

// HasRole reports whether the user carries the given role. Admin passes every check.
func (u AuthUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == "admin" || r == role {
			return true
		}
	}
	return false
}

// Middleware performs JWT validation or bypass during tests.
func Middleware(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.TestBypassAuth {
			c.Set("user", AuthUser{
				ID:           "test-user",
				ExternalID:   "test",
				Email:        "test@example.com",
				DisplayName:  "Test User",
				DepartmentID: "test-dept",
				Roles:        []string{"officer", "admin"},
			})
			c.Next()
			return
		}

		if a.Cfg.AuthMode == "local" {
			tokenStr, err := c.Cookie("auth")
			if err != nil || tokenStr == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing auth cookie"})
				return
			}
			token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method")
				}
				return []byte(a.Cfg.AuthLocalSecret), nil
			})
			if err != nil || !token.Valid {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
				return
			}
			uid := getStringClaim(claims, "sub")
			u, err := lookupUser(c, a, uid)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
				return
			}
			c.Set("user", u)
			c.Next()
			return
		}

		if a.Keyf == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "jwks not configured"})
			return
		}
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		token, err := jwt.Parse(tokenStr, a.Keyf)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if iss, ok := claims["iss"].(string); ok && a.Cfg.OIDCIssuer != "" && iss != a.Cfg.OIDCIssuer {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid issuer"})
			return
		}
		u := AuthUser{
			ExternalID:  getStringClaim(claims, "sub"),
			Email:       getStringClaim(claims, "email"),
			DisplayName: getStringClaim(claims, "name"),
		}
		if u.DisplayName == "" {
			u.DisplayName = getStringClaim(claims, "preferred_username")
		}
		if groups, ok := claims[a.Cfg.OIDCGroupClaim]; ok {
			switch g := groups.(type) {
			case []interface{}:
				for _, v := range g {
					if s, ok := v.(string); ok {
						u.Roles = append(u.Roles, s)
					}
				}
			case []string:
				u.Roles = append(u.Roles, g...)
			case string:
				u.Roles = append(u.Roles, g)
			}
		}
		// Resolve the local user row (created on first sight) so ID and
		// department reflect the database.
		if a.DB != nil {
			if local, err := resolveExternalUser(c, a, u); err == nil {
				u = local
			}
		}
		c.Set("user", u)
		c.Next()
	}
}

func lookupUser(c *gin.Context, a *app.App, id string) (AuthUser, error) {
	ctx := c.Request.Context()
	var u AuthUser
	var deptID *string
	err := a.DB.QueryRow(ctx,
		`select id::text, coalesce(email,''), coalesce(display_name,''), department_id::text from users where id=$1`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &deptID)
	if err != nil {
		return AuthUser{}, err
	}
	if deptID != nil {
		u.DepartmentID = *deptID
	}
	u.Roles = loadRoles(c, a, u.ID)
	return u, nil
}

func resolveExternalUser(c *gin.Context, a *app.App, claimed AuthUser) (AuthUser, error) {
	ctx := c.Request.Context()
	u := claimed
	var deptID *string
	err := a.DB.QueryRow(ctx,
		`select id::text, coalesce(email,''), coalesce(display_name,''), department_id::text from users where external_id=$1`, claimed.ExternalID).
		Scan(&u.ID, &u.Email, &u.DisplayName, &deptID)
	if err != nil {
		err = a.DB.QueryRow(ctx,
			`insert into users (id, external_id, email, display_name) values (gen_random_uuid(), $1, $2, $3) returning id::text`,
			claimed.ExternalID, claimed.Email, claimed.DisplayName).Scan(&u.ID)
		if err != nil {
			return AuthUser{}, err
		}
		u.Email = claimed.Email
		u.DisplayName = claimed.DisplayName
	}
	if deptID != nil {
		u.DepartmentID = *deptID
	}
	if dbRoles := loadRoles(c, a, u.ID); len(dbRoles) > 0 {
		u.Roles = dbRoles
	}
	return u, nil
}

func loadRoles(c *gin.Context, a *app.App, userID string) []string {
	rows, err := a.DB.Query(c.Request.Context(),
		`select r.name from user_roles ur join roles r on ur.role_id=r.id where ur.user_id=$1`, userID)
	if err != nil {
		return nil
	}
	defer rows.Close()
	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err == nil {
			roles = append(roles, role)
		}
	}
	return roles
}

func getStringClaim(c jwt.MapClaims, key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// Me returns the authenticated user.
func Me(c *gin.Context) {
	u, ok := c.Get("user")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// RequireRole ensures the user has one of the required roles. Admins always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uVal, ok := c.Get("user")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		user, ok := uVal.(AuthUser)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user"})
			return
		}
		for _, r := range user.Roles {
			if r == "admin" {
				c.Next()
				return
			}
		}
		for _, r := range user.Roles {
			for _, want := range roles {
				if r == want {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

type loginReq struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login issues an HMAC cookie for local auth mode.
func Login(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.Cfg.AuthMode != "local" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "login disabled"})
			return
		}
		var in loginReq
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()
		var id, hash, email, displayName string
		err := a.DB.QueryRow(ctx,
			`select id::text, coalesce(password_hash,''), coalesce(email,''), coalesce(display_name,'') from users where lower(username)=lower($1)`,
			in.Username).Scan(&id, &hash, &email, &displayName)
		if err != nil || id == "" || hash == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(in.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		claims := jwt.MapClaims{
			"sub":   id,
			"name":  displayName,
			"email": email,
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(24 * time.Hour).Unix(),
			"mode":  "local",
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		s, err := token.SignedString([]byte(a.Cfg.AuthLocalSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token"})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("auth", s, 86400, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// Logout clears the auth cookie.
func Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("auth", "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
