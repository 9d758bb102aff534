package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kindred-inc/kindred-api/schema"
)

const tokenValidity = 12 * time.Hour

type staffClaims struct {
	Role     schema.ActorRole `json:"role"`
	SchoolID string           `json:"school_id"`
	jwt.RegisteredClaims
}

// authorized validates the bearer token and gates the route on role. It sets
// requester, role and schoolID on the context for downstream handlers.
func (s *Server) authorized(roles ...schema.ActorRole) gin.HandlerFunc {
	allowed := map[schema.ActorRole]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortWithEncoding(c, http.StatusUnauthorized, errorUnauthorized)
			return
		}

		claims := &staffClaims{}
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			abortWithEncoding(c, http.StatusUnauthorized, errorUnauthorized, err)
			return
		}

		if _, ok := allowed[claims.Role]; !ok {
			abortWithEncoding(c, http.StatusForbidden, errorForbidden)
			return
		}

		c.Set("requester", claims.Subject)
		c.Set("role", string(claims.Role))
		c.Set("schoolID", claims.SchoolID)
		c.Next()
	}
}

// requesterSchool returns the school the caller belongs to. Admins may act
// across schools; everyone else is pinned to their own.
func (s *Server) schoolScoped(c *gin.Context, schoolID string) bool {
	if schema.ActorRole(c.GetString("role")) == schema.RoleAdmin {
		return true
	}
	return c.GetString("schoolID") == schoolID
}

func (s *Server) issueToken(account *schema.StaffAccount) (string, error) {
	now := time.Now().UTC()

	claims := staffClaims{
		Role:     account.Role,
		SchoolID: account.SchoolID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenValidity)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}
