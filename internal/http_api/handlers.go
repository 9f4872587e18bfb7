package http_api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/donum/internal/models"
)

const (
	claimWarning = "This is the only time these credentials are shown. Save the private key and the recovery password now. Anyone who has them controls the wallet."

	expiredMessage = "This claim link has expired. Mention us again with \"create wallet\" to get a new one."
	invalidMessage = "Invalid claim link."
)

// ClaimResponse carries the wallet credentials revealed by a claim link.
type ClaimResponse struct {
	Success          bool   `json:"success"`
	Handle           string `json:"handle"`
	Address          string `json:"address"`
	OnChainID        string `json:"on_chain_id,omitempty"`
	PrivateKey       string `json:"private_key"`
	RecoveryPassword string `json:"recovery_password"`
	// ExpiresAt is the link expiry as a unix timestamp in milliseconds.
	ExpiresAt int64  `json:"expires_at"`
	Warning   string `json:"warning"`
}

// claim is a handler for the /claim/:token endpoint.
// Expired links answer 410, every other failure 400 with the same message.
func (s *HTTPServer) claim(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Referrer-Policy", "no-referrer")

	claim, err := s.donum.OpenClaim(c.Param("token"))
	if err != nil {
		if errors.Is(err, models.ErrTokenExpired) {
			c.JSON(http.StatusGone, gin.H{"success": false, "error": expiredMessage})
			return
		}
		s.logger.Debug("Rejected claim link", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": invalidMessage})
		return
	}

	s.donum.RecordClaimAccess(context.WithoutCancel(c.Request.Context()), claim.ExternalUserID, time.Now())

	s.logger.Info("Claim link opened", "user", claim.ExternalUserID, "address", claim.Address)
	c.JSON(http.StatusOK, ClaimResponse{
		Success:          true,
		Handle:           claim.Handle,
		Address:          claim.Address,
		OnChainID:        claim.OnChainID,
		PrivateKey:       claim.SecretKey,
		RecoveryPassword: claim.RecoveryPassword,
		ExpiresAt:        claim.ExpiresAt,
		Warning:          claimWarning,
	})
}

// stats is a handler for the /api/v1/stats endpoint.
func (s *HTTPServer) stats(c *gin.Context) {
	stats, err := s.donum.DeliveryStats(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to get delivery stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
