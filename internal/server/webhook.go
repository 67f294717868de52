package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
)

const (
	headerShopifyTopic      = "X-Shopify-Topic"
	headerShopifyHmac       = "X-Shopify-Hmac-Sha256"
	headerShopifyWebhookID  = "X-Shopify-Webhook-Id"
	headerShopifyShopDomain = "X-Shopify-Shop-Domain"

	maxWebhookBodyBytes = 5 << 20
)

// HandleOrderWebhook accepts a Shopify delivery and answers 200 with an empty
// body once the lead has been written, or when the topic is not handled.
func (s *Server) HandleOrderWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if !s.verifySignature(c.GetHeader(headerShopifyHmac), body) {
		AbortWithError(c, domain.ErrInvalidSignature)
		return
	}

	topic := strings.TrimSpace(c.GetHeader(headerShopifyTopic))
	webhookID := strings.TrimSpace(c.GetHeader(headerShopifyWebhookID))
	c.Set("webhook_topic", topic)
	c.Set("webhook_id", webhookID)

	result, err := s.leadSvc.HandleDelivery(c.Request.Context(), domain.Delivery{
		Topic:      topic,
		WebhookID:  webhookID,
		ShopDomain: strings.TrimSpace(c.GetHeader(headerShopifyShopDomain)),
		Body:       body,
	})
	if err != nil {
		var leadErr *domain.Error
		if errors.As(err, &leadErr) && leadErr.OrderID != "" {
			c.Set("order_id", leadErr.OrderID)
		}
		AbortWithError(c, err)
		return
	}
	if result != nil && result.OrderID != "" {
		c.Set("order_id", result.OrderID)
	}

	c.Status(http.StatusOK)
}

// verifySignature checks the base64 HMAC-SHA256 of the raw body. Deliveries
// are accepted unsigned when no secret is configured.
func (s *Server) verifySignature(signature string, body []byte) bool {
	if len(s.webhookSecret) == 0 {
		return true
	}
	given, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(given) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}
