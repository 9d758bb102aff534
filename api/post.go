package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kindred-inc/kindred-api/schema"
	"github.com/kindred-inc/kindred-api/store"
)

// createPost adds an anonymous kindness post and fans it out to connected
// listeners. The author is recorded for moderation but never broadcast.
func (s *Server) createPost(c *gin.Context) {
	var params struct {
		SchoolID string `json:"school_id" binding:"required"`
		Category string `json:"category"`
		Content  string `json:"content" binding:"required,max=500"`
	}

	if err := c.BindJSON(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	if !s.schoolScoped(c, params.SchoolID) {
		abortWithEncoding(c, http.StatusForbidden, errorForbidden)
		return
	}

	post, err := s.store.CreatePost(schema.Post{
		SchoolID: params.SchoolID,
		AuthorID: c.GetString("requester"),
		Category: params.Category,
		Content:  params.Content,
	})
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	// best effort, at most once; disconnected listeners miss the event
	s.registry.Broadcast(gin.H{
		"event": "post_created",
		"post":  post,
	})

	c.JSON(http.StatusOK, gin.H{"id": post.ID})
}

func (s *Server) listPosts(c *gin.Context) {
	schoolID := c.Query("school_id")
	if schoolID == "" {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters)
		return
	}

	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)

	posts, err := s.store.ListPosts(schoolID, limit)
	if err != nil {
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (s *Server) heartPost(c *gin.Context) {
	post, err := s.store.HeartPost(c.Param("id"))
	if err != nil {
		if err == store.ErrPostNotFound {
			abortWithEncoding(c, http.StatusNotFound, errorNotFound, err)
			return
		}
		abortWithEncoding(c, http.StatusInternalServerError, errorInternalServer, err)
		return
	}

	s.registry.Broadcast(gin.H{
		"event": "post_hearted",
		"post":  post,
	})

	c.JSON(http.StatusOK, gin.H{
		"id":     post.ID,
		"hearts": post.Hearts,
	})
}
