package handlers

import (
	"github.com/ethpandaops/posintel/pkg/pos"
	"github.com/ethpandaops/posintel/pkg/store"
	"github.com/gofiber/fiber/v3"
)

// FilterParams are the query parameters shared by the table endpoints
type FilterParams struct {
	StoreID   string `query:"store_id"`
	ItemID    string `query:"item_id"`
	AlertType string `query:"alert_type"`
}

func (s *Server) filter(c fiber.Ctx) (store.Filter, error) {
	var params FilterParams
	if err := c.Bind().Query(&params); err != nil {
		return store.Filter{}, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	filter := store.Filter{
		StoreID: params.StoreID,
		ItemID:  params.ItemID,
	}

	if params.AlertType != "" {
		alertType := pos.AlertType(params.AlertType)
		if alertType != pos.AlertTypeSalesSpike && alertType != pos.AlertTypeLowStockHighDemand {
			return store.Filter{}, ErrInvalidAlertType
		}

		filter.AlertType = alertType
	}

	return filter, nil
}

// ListResponse wraps every list endpoint
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func list[T any](c fiber.Ctx, items []T) error {
	if items == nil {
		items = []T{}
	}

	return c.Status(fiber.StatusOK).JSON(ListResponse[T]{Items: items, Total: len(items)})
}

// ListSeries handles GET /api/v1/series
func (s *Server) ListSeries(c fiber.Ctx) error {
	filter, err := s.filter(c)
	if err != nil {
		return err
	}

	points, err := s.store.DailySeries(c.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to read daily series")
		return err
	}

	return list(c, points)
}

// ListAlerts handles GET /api/v1/alerts
func (s *Server) ListAlerts(c fiber.Ctx) error {
	filter, err := s.filter(c)
	if err != nil {
		return err
	}

	alerts, err := s.store.Alerts(c.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to read alerts")
		return err
	}

	return list(c, alerts)
}

// ListInsights handles GET /api/v1/insights
func (s *Server) ListInsights(c fiber.Ctx) error {
	filter, err := s.filter(c)
	if err != nil {
		return err
	}

	insights, err := s.store.Insights(c.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to read insights")
		return err
	}

	return list(c, insights)
}

// ListDecisions handles GET /api/v1/decisions
func (s *Server) ListDecisions(c fiber.Ctx) error {
	filter, err := s.filter(c)
	if err != nil {
		return err
	}

	decisions, err := s.store.Decisions(c.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to read decisions")
		return err
	}

	return list(c, decisions)
}

// ListStores handles GET /api/v1/stores
func (s *Server) ListStores(c fiber.Ctx) error {
	stores, err := s.store.Stores(c.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to read stores")
		return err
	}

	return list(c, stores)
}

// ListItems handles GET /api/v1/items
func (s *Server) ListItems(c fiber.Ctx) error {
	items, err := s.store.Items(c.Context(), c.Query("store_id"))
	if err != nil {
		s.log.WithError(err).Error("Failed to read items")
		return err
	}

	return list(c, items)
}

// Health handles GET /api/v1/health
func (s *Server) Health(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
		"queue":  s.queue != nil,
	})
}
