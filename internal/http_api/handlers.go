package http_api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stroller-protocol/custos/internal/custos"
	"github.com/stroller-protocol/custos/internal/models"
)

// Error messages returned in the {"error": ...} body of the top-up API.
const (
	errUndefinedData  = "Undefined data"
	errCreateWallet   = "Couldn't create new wallet"
	errPushTopUp      = "Couldn't push new top-up data"
	errWalletNotFound = "Wallet not found"
	errDeletingTopUp  = "Error while deleting top-up"
)

// mutationContext detaches a write from the client connection so that an
// aborted request does not leave a half applied change behind.
func (s *HTTPServer) mutationContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.Request.Context()), s.opts.RequestTimeout)
}

// addTopUp is a handler for the /api/topup/add endpoint.
// The response is empty on success and {"error": ...} otherwise, always
// with status 200.
func (s *HTTPServer) addTopUp(c *gin.Context) {
	var req models.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusOK, gin.H{"error": errUndefinedData})
		return
	}

	ctx, cancel := s.mutationContext(c)
	defer cancel()

	if _, err := s.custos.AddTopUp(ctx, req); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidInput):
			c.JSON(http.StatusOK, gin.H{"error": errUndefinedData})
		case errors.Is(err, custos.ErrCreateWallet):
			c.JSON(http.StatusOK, gin.H{"error": errCreateWallet})
		default:
			c.JSON(http.StatusOK, gin.H{"error": errPushTopUp})
		}
		return
	}

	c.Status(http.StatusOK)
}

// deleteTopUp is a handler for the /api/topup/delete endpoint.
func (s *HTTPServer) deleteTopUp(c *gin.Context) {
	var req models.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusOK, gin.H{"error": errUndefinedData})
		return
	}

	ctx, cancel := s.mutationContext(c)
	defer cancel()

	if err := s.custos.DeleteTopUp(ctx, req); err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidInput):
			c.JSON(http.StatusOK, gin.H{"error": errUndefinedData})
		case errors.Is(err, models.ErrWalletNotFound):
			c.JSON(http.StatusOK, gin.H{"error": errWalletNotFound})
		default:
			c.JSON(http.StatusOK, gin.H{"error": errDeletingTopUp})
		}
		return
	}

	c.Status(http.StatusOK)
}

// checkTopUp is a handler for the /api/topup/check endpoint.
// It runs the rules checker for the wallet. Failures are only logged.
func (s *HTTPServer) checkTopUp(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		s.logger.Debug("Check requested without address")
		c.Status(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()

	results, err := s.custos.CheckWallet(ctx, address)
	if err != nil {
		s.logger.Error("Error while checking for top-up", "address", address, "error", err)
	} else {
		s.logger.Info("Wallet checked", "address", address, "topUps", len(results))
	}

	c.Status(http.StatusOK)
}

func (s *HTTPServer) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
