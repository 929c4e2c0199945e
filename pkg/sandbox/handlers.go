package sandbox

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dukex/botportal/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/valyala/fasthttp"
)

type handlers struct {
	store     *Store
	validator *validator.Validate
	clock     clockwork.Clock
	interval  time.Duration
	done      <-chan struct{}
	logger    *slog.Logger
}

func (h *handlers) health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": h.clock.Now().Format(TimestampLayout),
	})
}

func (h *handlers) googleURL(c fiber.Ctx) error {
	query := url.Values{
		"response_type": {"code"},
		"scope":         {"openid email profile"},
		"redirect_uri":  {c.BaseURL() + "/api/auth/callback"},
	}

	return c.JSON(fiber.Map{"url": "https://accounts.google.com/o/oauth2/v2/auth?" + query.Encode()})
}

func (h *handlers) me(c fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

func (h *handlers) listBots(c fiber.Ctx) error {
	return c.JSON(h.store.Bots(currentUser(c)))
}

func (h *handlers) getBot(c fiber.Ctx) error {
	bot, err := h.store.Bot(c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	user := currentUser(c)
	if !user.CanAccessBot(bot.ID) {
		return forbidden(c, "no access to this bot")
	}

	return c.JSON(bot)
}

func (h *handlers) executeBot(c fiber.Ctx) error {
	var req models.ExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	bot, err := h.store.Bot(c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	if !bot.Enabled {
		return handleStoreError(c, ErrBotDisabled)
	}

	user := currentUser(c)
	if !user.CanAccessBot(bot.ID) {
		return forbidden(c, "no access to this bot")
	}

	exec, err := h.store.Enqueue(bot.ID, user.Email, user.DisplayName(), req.InputData)
	if err != nil {
		return handleStoreError(c, err)
	}

	h.logger.Info("execution queued", "execution_id", exec.ID, "bot_id", bot.ID, "user", user.Email)

	return c.JSON(exec)
}

func (h *handlers) botExecutions(c fiber.Ctx) error {
	return c.JSON(h.store.Executions(c.Params("id")))
}

func (h *handlers) listExecutions(c fiber.Ctx) error {
	return c.JSON(h.store.Executions(""))
}

func (h *handlers) getExecution(c fiber.Ctx) error {
	exec, err := h.store.Execution(c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(exec)
}

// streamExecution pushes one snapshot per interval until the execution is
// terminal or gone.
func (h *handlers) streamExecution(c fiber.Ctx) error {
	id := c.Params("id")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.RequestCtx().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		for {
			exec, err := h.store.Execution(id)

			var payload []byte
			if err != nil {
				payload = []byte(`{"error":"not_found"}`)
			} else if payload, err = json.Marshal(exec); err != nil {
				h.logger.Error("encode stream snapshot", "execution_id", id, "error", err)
				return
			}

			fmt.Fprintf(w, "data: %s\n\n", payload)

			if err := w.Flush(); err != nil {
				h.logger.Debug("stream client gone", "execution_id", id, "error", err)
				return
			}

			if exec.ID == "" || exec.Status.IsTerminal() {
				return
			}

			select {
			case <-h.done:
				return
			case <-h.clock.After(h.interval):
			}
		}
	}))

	return nil
}

func (h *handlers) cancelExecution(c fiber.Ctx) error {
	killed, err := h.store.Cancel(c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"ok": true, "killed": killed})
}

func (h *handlers) executionFiles(c fiber.Ctx) error {
	return c.JSON(h.store.Files(c.Params("id")))
}

func (h *handlers) fileText(c fiber.Ctx) error {
	content, err := h.store.File(c.Params("id"), c.Query("file_path"))
	if err != nil {
		return handleStoreError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")

	return c.Send(bytes.ToValidUTF8(content, []byte("\uFFFD")))
}

func (h *handlers) downloadFile(c fiber.Ctx) error {
	filePath := c.Params("*")

	content, err := h.store.File(c.Params("id"), filePath)
	if err != nil {
		return handleStoreError(c, err)
	}

	c.Attachment(filePath)

	return c.Send(content)
}

func (h *handlers) downloadZip(c fiber.Ctx) error {
	var buf bytes.Buffer

	filename, err := h.store.WriteZip(c.Params("id"), &buf)
	if err != nil {
		return handleStoreError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)

	return c.Send(buf.Bytes())
}

func (h *handlers) listSchedules(c fiber.Ctx) error {
	return c.JSON(h.store.Schedules(c.Params("id")))
}

func (h *handlers) createSchedule(c fiber.Ctx) error {
	var req models.ScheduleCreate
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	schedule, err := h.store.CreateSchedule(c.Params("id"), currentUser(c).Email, req)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(schedule)
}

func (h *handlers) updateSchedule(c fiber.Ctx) error {
	var req models.ScheduleUpdate
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	schedule, err := h.store.UpdateSchedule(c.Params("id"), req)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(schedule)
}

func (h *handlers) deleteSchedule(c fiber.Ctx) error {
	h.store.DeleteSchedule(c.Params("id"))

	return c.JSON(fiber.Map{"ok": true})
}

func (h *handlers) listUsers(c fiber.Ctx) error {
	return c.JSON(h.store.Users())
}

func (h *handlers) updateUserRole(c fiber.Ctx) error {
	var req models.UserRoleUpdate
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	user, err := h.store.SetRole(c.Params("id"), req.Role)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(user)
}

func (h *handlers) updateUserBots(c fiber.Ctx) error {
	var req models.UserBotsUpdate
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	user, err := h.store.SetAllowedBots(c.Params("id"), req.AllowedBotIDs)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(user)
}

func (h *handlers) createBot(c fiber.Ctx) error {
	var req models.BotCreate
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	bot, err := h.store.CreateBot(req)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(bot)
}

func (h *handlers) updateBot(c fiber.Ctx) error {
	var req models.BotUpdate
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	bot, err := h.store.UpdateBot(c.Params("id"), req)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(bot)
}

func (h *handlers) deleteBot(c fiber.Ctx) error {
	h.store.DeleteBot(c.Params("id"))

	return c.JSON(fiber.Map{"ok": true})
}

func (h *handlers) stats(c fiber.Ctx) error {
	return c.JSON(h.store.Stats())
}

func (h *handlers) queueStatus(c fiber.Ctx) error {
	return c.JSON(h.store.QueueStatus())
}
