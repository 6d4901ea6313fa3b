package server

import (
	"facefeed/internal/models"
	"facefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetComments handles GET /api/posts/:id/comments
// @Summary List comments
// @Description Top-level comments of a post, or the replies to ?parent=
// @Tags comments
// @Produce json
// @Param id path string true "Post ID"
// @Param parent query string false "Parent comment ID"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} object{items=[]object,total=int,limit=int,offset=int}
// @Router /posts/{id}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	page := parsePagination(c, 50)
	res, err := s.commentService.GetComments(c.UserContext(), service.ListCommentsInput{
		ViewerID: currentUserID(c),
		PostID:   postID,
		ParentID: c.Query("parent"),
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(res)
}

// CreateComment handles POST /api/posts/:id/comments
// @Summary Create comment
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param request body object{text=string,parentId=string} true "Comment"
// @Success 201 {object} object
// @Failure 400 {object} models.ErrorResponse
// @Router /posts/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	var req struct {
		Text     string `json:"text"`
		ParentID string `json:"parentId"`
	}
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	comment, err := s.commentService.CreateComment(c.UserContext(), service.CreateCommentInput{
		AuthorID: currentUserID(c),
		PostID:   postID,
		ParentID: req.ParentID,
		Text:     req.Text,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// UpdateComment handles PUT /api/posts/:id/comments/:commentId
func (s *Server) UpdateComment(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	commentID, err := pathID(c, "commentId")
	if err != nil {
		return models.Respond(c, err)
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	comment, err := s.commentService.UpdateComment(c.UserContext(), service.UpdateCommentInput{
		ActorID:   currentUserID(c),
		PostID:    postID,
		CommentID: commentID,
		Text:      req.Text,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(comment)
}

// DeleteComment handles DELETE /api/posts/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	commentID, err := pathID(c, "commentId")
	if err != nil {
		return models.Respond(c, err)
	}
	if err := s.commentService.DeleteComment(c.UserContext(), currentUserID(c), postID, commentID); err != nil {
		return models.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikeComment handles POST /api/posts/:id/comments/:commentId/like
func (s *Server) LikeComment(c *fiber.Ctx) error {
	postID, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	commentID, err := pathID(c, "commentId")
	if err != nil {
		return models.Respond(c, err)
	}
	var req struct {
		Reaction string `json:"reaction"`
	}
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	res, err := s.reactionService.LikeComment(c.UserContext(), currentUserID(c), postID, commentID, req.Reaction)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(res)
}
