package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/kindred-inc/kindred-api/store"
)

// login authenticates a staff account and returns a bearer token. Unknown
// emails and wrong passwords share one error so accounts cannot be probed.
func (s *Server) login(c *gin.Context) {
	var params struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	account, err := s.store.GetStaffAccountByEmail(params.Email)
	if err != nil {
		if err == store.ErrAccountNotFound {
			abortWithEncoding(c, http.StatusUnauthorized, errorUnauthorized)
			return
		}
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(params.Password)); err != nil {
		abortWithEncoding(c, http.StatusUnauthorized, errorUnauthorized)
		return
	}

	token, err := s.issueToken(account)
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"role":      account.Role,
		"school_id": account.SchoolID,
	})
}
