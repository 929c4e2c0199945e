package sandbox

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

var (
	ErrSlugTaken         = errors.New("a bot with that slug already exists")
	ErrBotDisabled       = errors.New("bot is disabled")
	ErrAlreadyFinished   = errors.New("execution already finished")
	ErrSchedulingBlocked = errors.New("bot does not support scheduling")
	ErrNoFiles           = errors.New("execution has no files")
)

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func notFoundErr(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func problem(c fiber.Ctx, status int, kind, detail string) error {
	body := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(body)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func unauthorized(c fiber.Ctx) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", "not authenticated")
}

func forbidden(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusForbidden, "forbidden", detail)
}

func internalError(c fiber.Ctx, err error) error {
	body := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(body)
}

// handleStoreError maps store failures onto problem responses.
func handleStoreError(c fiber.Ctx, err error) error {
	var nf *NotFoundError

	switch {
	case errors.As(err, &nf):
		return problem(c, fiber.StatusNotFound, nf.Resource+"_not_found", err.Error())
	case errors.Is(err, ErrNoFiles):
		return problem(c, fiber.StatusNotFound, "files_not_found", err.Error())
	case errors.Is(err, ErrSlugTaken),
		errors.Is(err, ErrBotDisabled),
		errors.Is(err, ErrAlreadyFinished),
		errors.Is(err, ErrSchedulingBlocked):
		return badRequest(c, err.Error())
	default:
		return internalError(c, err)
	}
}
