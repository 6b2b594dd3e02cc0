package handler

import (
	"errors"
	"io"
	"log"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/faceswaplab/api/internal/service"
	"github.com/faceswaplab/api/internal/store"
	"github.com/faceswaplab/api/pkg/response"
)

const maxUploadSize = 15 * 1024 * 1024 // 15MB per image

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

// Create handles POST /api/v1/face-swap/jobs. Accepts multipart fields
// base_image and selfie, returns 202 with the new reference id.
func (h *JobHandler) Create(c *fiber.Ctx) error {
	baseFile, err := c.FormFile("base_image")
	if err != nil {
		return response.ValidationError(c, "base_image file is required", nil)
	}
	selfieFile, err := c.FormFile("selfie")
	if err != nil {
		return response.ValidationError(c, "selfie file is required", nil)
	}

	for _, file := range []*multipart.FileHeader{baseFile, selfieFile} {
		if file.Size > maxUploadSize {
			return response.ValidationError(c, file.Filename+" exceeds the 15MB limit", map[string]interface{}{
				"maxSize":  maxUploadSize,
				"fileSize": file.Size,
			})
		}
	}

	log.Printf("[%v] Create job request: base=%s selfie=%s",
		c.Locals("request_id"), baseFile.Filename, selfieFile.Filename)

	baseData, err := readAll(baseFile)
	if err != nil {
		return response.ServiceError(c, "Failed to read base_image")
	}
	selfieData, err := readAll(selfieFile)
	if err != nil {
		return response.ServiceError(c, "Failed to read selfie")
	}

	result, err := h.service.CreateJob(c.Context(), baseData, selfieData)
	if err != nil {
		var ve *service.ValidationError
		switch {
		case errors.Is(err, service.ErrProviderNotConfigured):
			return response.ConfigError(c, err.Error())
		case errors.As(err, &ve):
			return response.UnsupportedMedia(c, ve.Error())
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/v1/face-swap/jobs/:referenceId.
func (h *JobHandler) Status(c *fiber.Ctx) error {
	referenceID := c.Params("referenceId")
	if referenceID == "" {
		return response.ValidationError(c, "reference_id is required", nil)
	}

	result, err := h.service.GetJobStatus(c.Context(), referenceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Invalid reference_id")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

func readAll(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
