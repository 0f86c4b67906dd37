package handlers

import "github.com/gofiber/fiber/v3"

// ErrQueueUnavailable is returned when runs cannot be submitted
var ErrQueueUnavailable = fiber.NewError(fiber.StatusServiceUnavailable, "run queue is not configured")

// ErrRunNotFound is returned when the queue holds no such run
var ErrRunNotFound = fiber.NewError(fiber.StatusNotFound, "run not found")

// ErrInvalidAlertType is returned for an alert type filter no rule produces
var ErrInvalidAlertType = fiber.NewError(fiber.StatusBadRequest, "invalid alert_type, expected sales_spike or low_stock_high_demand")
