package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope every JSON endpoint answers with. Detail is the
// user facing reason shown by the lab frontend, for example the execution
// service message behind a failed run or submission.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Meta    interface{} `json:"meta,omitempty"`
	Detail  string      `json:"detail,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func write(c *fiber.Ctx, status int, payload APIResponse) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if payload.Message == "" {
		if payload.Success {
			payload.Message = "success"
		} else {
			payload.Message = "error"
		}
	}
	return c.Status(status).JSON(payload)
}

// SendSuccess sends a 200 success payload.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return write(c, fiber.StatusOK, APIResponse{Success: true, Data: data, Message: message})
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	return write(c, status, APIResponse{Success: true, Data: data, Message: message})
}

// OK sends a success payload with optional metadata such as cache hits.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return write(c, fiber.StatusOK, APIResponse{Success: true, Data: data, Message: message, Meta: meta})
}

// SendError sends an error payload with the given status code.
func SendError(c *fiber.Ctx, status int, message string) error {
	return write(c, status, APIResponse{Message: message})
}

// SendErrorDetail sends an error whose detail is shown to students as is.
// An empty detail repeats the message.
func SendErrorDetail(c *fiber.Ctx, status int, message, detail string) error {
	if message == "" {
		message = "error"
	}
	if detail == "" {
		detail = message
	}
	return write(c, status, APIResponse{Message: message, Detail: detail})
}

// Fail sends an error response with structured details, typically validation errors.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	return write(c, status, APIResponse{Message: message, Details: details})
}
