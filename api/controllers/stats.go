package controllers

import (
	"net/http"
	"strings"

	"github.com/maquis-app/maquis-backend/api/responses"
	"github.com/maquis-app/maquis-backend/api/validators"
	"github.com/maquis-app/maquis-backend/internal/stats"
	"github.com/maquis-app/maquis-backend/pkg/logger"
)

// StatsDailySummary aggregates paid orders per day over a trailing window.
func StatsDailySummary(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days, err := validators.ParseQueryInt(r, "days", 7, 1, 365)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.DailySummary(r.Context(), days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// StatsTopItems ranks menu items by quantity sold over a trailing window.
func StatsTopItems(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 10, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		days, err := validators.ParseQueryInt(r, "days", 7, 1, 365)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.TopItems(r.Context(), limit, days)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// StatsRevenueByMethod breaks down net revenue by payment method for one day.
func StatsRevenueByMethod(svc stats.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		day := strings.TrimSpace(r.URL.Query().Get("day"))

		rows, err := svc.RevenueByMethod(r.Context(), day)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
