package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kindred-inc/kindred-api/store"
)

func (s *Server) awardTokens(c *gin.Context) {
	var params struct {
		Owner    string `json:"owner" binding:"required"`
		SchoolID string `json:"school_id" binding:"required"`
		Amount   int64  `json:"amount" binding:"required,gt=0"`
		Reason   string `json:"reason"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	if !s.schoolScoped(c, params.SchoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	account, err := s.store.AwardTokens(params.Owner, params.SchoolID, params.Amount, params.Reason)
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":   account.Owner,
		"balance": account.Balance,
	})
}

// redeemTokens deducts the reward price from the caller's balance. The
// deduction is a conditional update in the store, so concurrent redemptions
// cannot overdraw.
func (s *Server) redeemTokens(c *gin.Context) {
	var params struct {
		RewardID string `json:"reward_id" binding:"required"`
		Amount   int64  `json:"amount" binding:"required,gt=0"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	account, err := s.store.RedeemTokens(c.GetString("requester"), params.RewardID, params.Amount)
	if err != nil {
		switch err {
		case store.ErrInsufficientBalance:
			abortWithEncoding(c, http.StatusConflict, errorInsufficientBalance, err)
		case store.ErrTokenAccountMissing:
			abortWithEncoding(c, http.StatusNotFound, errorNotFound, err)
		case store.ErrInvalidTokenAmount:
			abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		default:
			abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":   account.Owner,
		"balance": account.Balance,
	})
}

func (s *Server) tokenBalance(c *gin.Context) {
	owner := c.GetString("requester")

	account, err := s.store.GetTokenBalance(owner)
	if err != nil {
		if err == store.ErrTokenAccountMissing {
			c.JSON(http.StatusOK, gin.H{"owner": owner, "balance": 0})
			return
		}
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("history", "0"), 10, 64)
	if limit > 0 {
		transactions, err := s.store.ListTokenTransactions(owner, limit)
		if err != nil {
			abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"owner":        account.Owner,
			"balance":      account.Balance,
			"transactions": transactions,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner":   account.Owner,
		"balance": account.Balance,
	})
}
