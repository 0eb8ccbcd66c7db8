package http_api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/stroller-protocol/custos/internal/models"
)

// handleTelegramWebhook processes incoming Telegram webhook updates.
// Telegram re-delivers updates that are not acknowledged quickly, so the
// update is acknowledged first and handled in the background.
func (s *HTTPServer) handleTelegramWebhook(c *gin.Context) {
	secret := c.Param("secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.WebhookSecret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}

	var update tgModels.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		s.logger.Debug("Invalid webhook payload", "error", err)
		c.Status(http.StatusOK)
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		c.Status(http.StatusOK)
		return
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	text := update.Message.Text

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
		defer cancel()
		s.processMessage(ctx, update.ID, chatID, text)
	}()

	c.Status(http.StatusOK)
}

func (s *HTTPServer) processMessage(ctx context.Context, updateID int64, chatID, text string) {
	if s.opts.Guard != nil {
		first, err := s.opts.Guard.First(ctx, updateID)
		if err != nil {
			s.logger.Warn("Update de-duplication unavailable", "update", updateID, "error", err)
		} else if !first {
			s.logger.Debug("Skipping re-delivered update", "update", updateID)
			return
		}
	}

	reply, ok := s.opts.Commands.Handle(ctx, models.ChannelTelegram, chatID, text)
	if !ok {
		return
	}
	if err := s.opts.Replier.Send(ctx, models.ChannelTelegram, chatID, reply); err != nil {
		s.logger.Error("Failed to send reply", "chat", chatID, "error", err)
	}
}
