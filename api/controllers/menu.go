package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/maquis-app/maquis-backend/api/responses"
	"github.com/maquis-app/maquis-backend/internal/catalog"
	"github.com/maquis-app/maquis-backend/pkg/logger"
	"github.com/maquis-app/maquis-backend/pkg/money"
)

type menuItemResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	PriceCents   int64     `json:"price_cents"`
	PriceDisplay string    `json:"price_display"`
	PrepMinutes  int       `json:"prep_minutes"`
}

// MenuList returns the currently orderable menu.
func MenuList(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.ListAvailable(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]menuItemResponse, 0, len(items))
		for _, item := range items {
			out = append(out, menuItemResponse{
				ID:           item.ID,
				Name:         item.Name,
				PriceCents:   item.PriceCents,
				PriceDisplay: money.MustFromCents(item.PriceCents).Display(),
				PrepMinutes:  item.PrepMinutes,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
