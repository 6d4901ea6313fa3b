package server

import (
	"time"

	"facefeed/internal/models"
	"facefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Text        string     `json:"text"`
	VideoURL    string     `json:"videoUrl"`
	ImageURLs   []string   `json:"imageUrls"`
	Hashtags    []string   `json:"hashtags"`
	Mentions    []string   `json:"mentions"`
	Privacy     string     `json:"privacy"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

type updatePostRequest struct {
	Text      *string  `json:"text"`
	VideoURL  *string  `json:"videoUrl"`
	ImageURLs []string `json:"imageUrls"`
	Hashtags  []string `json:"hashtags"`
	Mentions  []string `json:"mentions"`
	Privacy   *string  `json:"privacy"`
	IsPinned  *bool    `json:"isPinned"`
}

// GetPosts handles GET /api/posts
// @Summary Post feed
// @Description Published posts visible to the caller, newest first
// @Tags posts
// @Produce json
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Param author query string false "Only posts by this user"
// @Success 200 {object} object{items=[]object,total=int,limit=int,offset=int}
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	feed, err := s.postService.GetPostFeed(c.UserContext(), service.FeedInput{
		ViewerID: currentUserID(c),
		AuthorID: c.Query("author"),
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(feed)
}

// SearchPosts handles GET /api/posts/search?q=...
func (s *Server) SearchPosts(c *fiber.Ctx) error {
	q := c.Query("q")
	if q == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Search query is required"))
	}
	page := parsePagination(c, 20)
	res, err := s.postService.SearchPosts(c.UserContext(), q, currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(res)
}

// GetPost handles GET /api/posts/:id
// @Summary Get post
// @Description One post with its reaction breakdown. Authenticated views are counted.
// @Tags posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} object{post=object,reactions=object,viewerReaction=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	detail, err := s.postService.GetPost(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(detail)
}

// GetUserPosts handles GET /api/users/:id/posts
func (s *Server) GetUserPosts(c *fiber.Ctx) error {
	authorID, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	page := parsePagination(c, 20)
	res, err := s.postService.GetUserPosts(c.UserContext(), authorID, currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(res)
}

// CreatePost handles POST /api/posts
// @Summary Create post
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createPostRequest true "Post"
// @Success 201 {object} object
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		AuthorID:    currentUserID(c),
		Text:        req.Text,
		VideoURL:    req.VideoURL,
		ImageURLs:   req.ImageURLs,
		Hashtags:    req.Hashtags,
		Mentions:    req.Mentions,
		Privacy:     req.Privacy,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	var req updatePostRequest
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	post, err := s.postService.UpdatePost(c.UserContext(), service.UpdatePostInput{
		ActorID:   currentUserID(c),
		PostID:    id,
		Text:      req.Text,
		VideoURL:  req.VideoURL,
		ImageURLs: req.ImageURLs,
		Hashtags:  req.Hashtags,
		Mentions:  req.Mentions,
		Privacy:   req.Privacy,
		IsPinned:  req.IsPinned,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
// @Summary Delete post
// @Description Deletes the post with its reactions and soft-deletes its comments
// @Tags posts
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [delete]
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	if err := s.postService.DeletePost(c.UserContext(), currentUserID(c), id); err != nil {
		return models.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// LikePost handles POST /api/posts/:id/like
// @Summary React to post
// @Description Toggles the caller's reaction: none adds, same removes, different replaces
// @Tags posts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Post ID"
// @Param request body object{reaction=string} false "Reaction (default like)"
// @Success 200 {object} object{action=string,reaction=string,likesCount=int,reactions=object}
// @Router /posts/{id}/like [post]
func (s *Server) LikePost(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	var req struct {
		Reaction string `json:"reaction"`
	}
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	res, err := s.reactionService.LikePost(c.UserContext(), currentUserID(c), id, req.Reaction)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(res)
}

// SharePost handles POST /api/posts/:id/share
func (s *Server) SharePost(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return models.Respond(c, err)
	}
	var req struct {
		Comment string `json:"comment"`
	}
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	res, err := s.postService.SharePost(c.UserContext(), currentUserID(c), id, req.Comment)
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}
