package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kindred-inc/kindred-api/store"
)

func (s *Server) issueClaimCode(c *gin.Context) {
	var params struct {
		SchoolID string `json:"school_id" binding:"required"`
		MaxUses  int    `json:"max_uses"`
		TTLHours int    `json:"ttl_hours"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	if !s.schoolScoped(c, params.SchoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	claim, err := s.store.IssueClaimCode(
		params.SchoolID,
		c.GetString("requester"),
		params.MaxUses,
		time.Duration(params.TTLHours)*time.Hour,
	)
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":       claim.Code,
		"expires_at": claim.ExpiresAt,
		"max_uses":   claim.MaxUses,
	})
}

// redeemClaimCode lets a student join a school. The created account is
// inactive until a parent completes the consent workflow.
func (s *Server) redeemClaimCode(c *gin.Context) {
	var params struct {
		Code        string `json:"code" binding:"required"`
		DisplayName string `json:"display_name" binding:"required,min=2"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	student, err := s.store.RedeemClaimCode(params.Code, params.DisplayName)
	if err != nil {
		switch err {
		case store.ErrClaimCodeNotFound:
			abortWithEncoding(c, http.StatusNotFound, errorClaimCodeInvalid, err)
		case store.ErrClaimCodeExhausted:
			abortWithEncoding(c, http.StatusGone, errorClaimCodeInvalid, err)
		default:
			abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"student_id": student.ID,
		"school_id":  student.SchoolID,
		"active":     student.Active,
	})
}
