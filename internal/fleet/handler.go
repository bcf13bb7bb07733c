package fleet

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campuspro/internal/account"
	"campuspro/internal/auth"
)

// Handler exposes the admin fleet surface and the driver's own-bus lookup.
type Handler struct {
	repo     *Repository
	accounts *account.Repository
}

// NewHandler creates a handler.
func NewHandler(repo *Repository, accounts *account.Repository) *Handler {
	return &Handler{repo: repo, accounts: accounts}
}

// RegisterAdmin mounts routes that require the admin role.
func (h *Handler) RegisterAdmin(g gin.IRoutes) {
	g.POST("/buses", h.createBus)
	g.GET("/buses", h.listBuses)
	g.PUT("/buses/:rfid_id", h.updateBus)
	g.DELETE("/buses/:rfid_id", h.deleteBus)
	g.POST("/routes", h.createRoute)
	g.GET("/routes", h.listRoutes)
	g.DELETE("/routes/:id", h.deleteRoute)
	g.POST("/users", h.createUser)
}

// RegisterDriver mounts routes available to any authenticated user.
func (h *Handler) RegisterDriver(g gin.IRoutes) {
	g.GET("/me/bus", h.myBus)
}

func (h *Handler) createBus(c *gin.Context) {
	var in BusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.CreateBus(c.Request.Context(), in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rfid_id": in.RFIDID, "bus_number": in.BusNumber})
}

func (h *Handler) listBuses(c *gin.Context) {
	buses, err := h.repo.ListBuses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buses": buses})
}

func (h *Handler) updateBus(c *gin.Context) {
	var in BusInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.UpdateBus(c.Request.Context(), c.Param("rfid_id"), in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *Handler) deleteBus(c *gin.Context) {
	if err := h.repo.DeleteBus(c.Request.Context(), c.Param("rfid_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) createRoute(c *gin.Context) {
	var rt Route
	if err := c.ShouldBindJSON(&rt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	created, err := h.repo.CreateRoute(c.Request.Context(), rt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listRoutes(c *gin.Context) {
	routes, err := h.repo.ListRoutes(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

func (h *Handler) deleteRoute(c *gin.Context) {
	if err := h.repo.DeleteRoute(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) createUser(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role" binding:"required,oneof=admin driver"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := h.accounts.Create(c.Request.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) myBus(c *gin.Context) {
	claimsAny, _ := c.Get("claims")
	claims, _ := claimsAny.(auth.Claims)
	bus, err := h.repo.BusByDriver(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if bus == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no bus assigned"})
		return
	}
	c.JSON(http.StatusOK, bus)
}
