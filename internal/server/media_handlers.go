package server

import (
	"io"

	"facefeed/internal/media"
	"facefeed/internal/models"

	"github.com/gofiber/fiber/v2"
)

// UploadMedia handles POST /api/media (multipart field "file").
// @Summary Upload media
// @Description Images are resized to fit 2048px and stored as JPEG and WebP; videos are stored unchanged
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image or video"
// @Success 201 {object} media.Upload
// @Failure 400 {object} models.ErrorResponse
// @Router /media [post]
func (s *Server) UploadMedia(c *fiber.Ctx) error {
	if s.mediaService == nil {
		return models.Respond(c, models.NewUnavailableError("Media storage is not configured", nil))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}
	f, err := fh.Open()
	if err != nil {
		return models.Respond(c, models.NewValidationError("Unable to read upload"))
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(f)
	if err != nil {
		return models.Respond(c, models.NewValidationError("Unable to read upload"))
	}

	up, err := s.mediaService.Upload(c.UserContext(), media.UploadInput{
		UserID:      currentUserID(c),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(up)
}

// ListMedia handles GET /api/media
func (s *Server) ListMedia(c *fiber.Ctx) error {
	if s.mediaService == nil {
		return models.Respond(c, models.NewUnavailableError("Media storage is not configured", nil))
	}
	objs, err := s.mediaService.List(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(fiber.Map{"items": objs})
}

// DeleteMedia handles DELETE /api/media?key=
func (s *Server) DeleteMedia(c *fiber.Ctx) error {
	if s.mediaService == nil {
		return models.Respond(c, models.NewUnavailableError("Media storage is not configured", nil))
	}
	if err := s.mediaService.Delete(c.UserContext(), currentUserID(c), c.Query("key")); err != nil {
		return models.Respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
