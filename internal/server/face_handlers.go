package server

import (
	"facefeed/internal/models"
	"facefeed/internal/service"

	"github.com/gofiber/fiber/v2"
)

var errFaceUnavailable = models.NewUnavailableError("Face verification is not configured", nil)

// GetFaceVerification handles GET /api/face-verification
// @Summary Face verification status
// @Description Enrollment flags and the onboarding step (checking, needs_enrollment, needs_verification, complete)
// @Tags face-verification
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.FaceStatus
// @Failure 503 {object} models.ErrorResponse
// @Router /face-verification [get]
func (s *Server) GetFaceVerification(c *fiber.Ctx) error {
	if s.faceService == nil {
		return models.Respond(c, errFaceUnavailable)
	}
	status, err := s.faceService.Status(c.UserContext(), currentUserID(c))
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(status)
}

// PostFaceVerification handles POST /api/face-verification
// @Summary Face verification action
// @Description enroll and verify need faceId. delete also removes the face at the provider.
// @Tags face-verification
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{action=string,faceId=string} true "Action: enroll, verify, enable, disable or delete"
// @Success 200 {object} service.FaceStatus
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /face-verification [post]
func (s *Server) PostFaceVerification(c *fiber.Ctx) error {
	if s.faceService == nil {
		return models.Respond(c, errFaceUnavailable)
	}
	var req struct {
		Action string `json:"action"`
		FaceID string `json:"faceId"`
	}
	if err := parseBody(c, &req); err != nil {
		return models.Respond(c, err)
	}
	status, err := s.faceService.Apply(c.UserContext(), service.FaceActionInput{
		UserID: currentUserID(c),
		Action: req.Action,
		FaceID: req.FaceID,
	})
	if err != nil {
		return models.Respond(c, err)
	}
	return c.JSON(status)
}
