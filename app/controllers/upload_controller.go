package controllers

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ReceiptFox/internal/pkg/apperr"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/upload"
	"github.com/ManuelReschke/ReceiptFox/internal/pkg/usercontext"
)

var requestValidator = validator.New()

type signUploadRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// HandleSignUpload returns a presigned PUT URL for one receipt file
func (a *API) HandleSignUpload(c *fiber.Ctx) error {
	if a.deps.Uploads == nil {
		return respondError(c, apperr.NotImplemented("direct uploads are disabled"))
	}

	var req signUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.Validation("invalid request body"))
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := requestValidator.Struct(req); err != nil {
		return respondError(c, apperr.Validation("invalid upload request", fieldErrors(err)...))
	}
	if err := upload.ValidateReceiptName(req.Name); err != nil {
		return respondError(c, apperr.Validation("unsupported receipt file", "name: "+err.Error()))
	}

	signed, err := a.deps.Uploads.PresignPut(c.UserContext(), usercontext.GetUserID(c), req.Name, upload.ContentTypeFor(req.Name))
	if err != nil {
		return respondError(c, apperr.Downstream("could not sign upload", err))
	}
	return c.JSON(fiber.Map{
		"method":    signed.Method,
		"uploadUrl": signed.UploadURL,
		"headers":   signed.Headers,
		"fileUrl":   signed.FileURL,
		"expiresAt": formatTimePtr(&signed.ExpiresAt),
	})
}

func fieldErrors(err error) []string {
	var out []string
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			out = append(out, strings.ToLower(fe.Field())+": failed "+fe.Tag())
		}
		return out
	}
	return []string{err.Error()}
}
