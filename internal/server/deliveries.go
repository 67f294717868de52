package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/smallbiznis/orderlead/pkg/db/pagination"
)

type listDeliveriesRequest struct {
	pagination.Pagination
	OrderID string `form:"order_id"`
	Status  string `form:"status"`
}

// AdminTokenRequired guards the admin group with a static bearer token.
func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.adminToken)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) ListDeliveries(c *gin.Context) {
	var req listDeliveriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be between 1 and 250"))
		return
	}

	filter := domain.DeliveryFilter{
		OrderID: strings.TrimSpace(req.OrderID),
		Limit:   req.Limit() + 1,
	}

	switch status := domain.DeliveryStatus(strings.TrimSpace(req.Status)); status {
	case "":
	case domain.DeliveryStatusSucceeded, domain.DeliveryStatusFailed:
		filter.Status = status
	default:
		AbortWithError(c, newValidationError("status", "invalid_status", "status must be succeeded or failed"))
		return
	}

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
			return
		}
		before, err := snowflake.ParseString(cursor.ID)
		if err != nil || before == 0 {
			AbortWithError(c, newValidationError("page_token", "invalid_page_token", "invalid page token"))
			return
		}
		filter.BeforeID = before
	}

	records, err := s.deliveryLog.ListDeliveries(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	records, pageInfo, err := pagination.BuildCursorPageInfo(records, req.Limit(), func(r *domain.DeliveryRecord) pagination.Cursor {
		return pagination.Cursor{ID: r.ID.String()}
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records, "page_info": pageInfo})
}
