package api

import (
	"net/http"

	"github.com/Domenick1991/servicehub/internal/domain"
	"github.com/Domenick1991/servicehub/internal/service/catalog"
	"github.com/gin-gonic/gin"
)

type ServiceHandler struct {
	catalog catalog.CatalogUseCase
}

type addonResponse struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type serviceResponse struct {
	ID              string          `json:"id"`
	ProviderID      string          `json:"providerId"`
	Name            string          `json:"name"`
	BasePrice       float64         `json:"basePrice"`
	Currency        string          `json:"currency"`
	DurationMinutes int             `json:"durationMinutes"`
	Addons          []addonResponse `json:"addons,omitempty"`
}

func NewServiceHandler(catalog catalog.CatalogUseCase) *ServiceHandler {
	return &ServiceHandler{catalog: catalog}
}

func (h *ServiceHandler) Register(router *gin.RouterGroup) {
	router.GET("/services/:id", h.get)
	router.GET("/providers/:id/services", h.listByProvider)
}

func (h *ServiceHandler) get(c *gin.Context) {
	svc, err := h.catalog.GetService(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toServiceResponse(svc))
}

func (h *ServiceHandler) listByProvider(c *gin.Context) {
	services, err := h.catalog.ListProviderServices(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]serviceResponse, 0, len(services))
	for i := range services {
		resp = append(resp, toServiceResponse(&services[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func toServiceResponse(s *domain.Service) serviceResponse {
	resp := serviceResponse{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		Name:            s.Name,
		BasePrice:       s.BasePrice.InexactFloat64(),
		Currency:        s.Currency,
		DurationMinutes: s.EffectiveDuration(),
	}
	for _, a := range s.Addons {
		resp.Addons = append(resp.Addons, addonResponse{ID: a.ID, Name: a.Name, Price: a.Price.InexactFloat64()})
	}
	return resp
}
