package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/robertspest/reorderdesk/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Role is a permission level. Each role includes the ones below it.
type Role string

const (
	RoleView     Role = "VIEW"
	RoleRequest  Role = "REQUEST"
	RoleApprover Role = "APPROVER"
	RoleAdmin    Role = "ADMIN"
)

var roleRank = map[Role]int{
	RoleView:     1,
	RoleRequest:  2,
	RoleApprover: 3,
	RoleAdmin:    4,
}

// ParseRole normalises a role claim. Unknown roles rank below VIEW.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := roleRank[r]
	return r, ok
}

// Allows reports whether r grants at least min.
func (r Role) Allows(min Role) bool {
	return roleRank[r] >= roleRank[min] && roleRank[r] > 0
}

// Context keys set by RequireRole.
const (
	KeyUserID   = "userID"
	KeyIdentity = "identity"
	KeyUserRole = "userRole"
)

var (
	ErrMissingToken = errors.New("authorization is missing")
	ErrInvalidToken = errors.New("invalid token")
)

// Principal is the verified caller of a request.
type Principal struct {
	Subject  string
	Identity string // email when present, else the subject
	Role     Role
}

// Auth verifies tokens issued by the identity provider. It never issues any.
type Auth struct {
	secret []byte
}

func NewAuth(secret []byte) *Auth {
	return &Auth{secret: secret}
}

// Verify checks the HMAC signature and expiry of tokenString and extracts
// the caller.
func (a *Auth) Verify(tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, ErrMissingToken
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	rawRole, _ := claims["role"].(string)
	role, ok := ParseRole(rawRole)
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	p := Principal{Role: role}
	p.Subject, _ = claims["sub"].(string)
	p.Identity, _ = claims["email"].(string)
	if p.Identity == "" {
		p.Identity = p.Subject
	}
	if p.Identity == "" {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

// RequireRole Middleware validates the JWT token and checks that its role is
// at least min
func (a *Auth) RequireRole(min Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		principal, err := a.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}
		if !principal.Role.Allows(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(KeyUserID, principal.Subject)
		c.Set(KeyIdentity, principal.Identity)
		c.Set(KeyUserRole, string(principal.Role))

		c.Next()
	}
}
