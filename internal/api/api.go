package api

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/404minds/obd-receiver/internal/calibration"
	errs "github.com/404minds/obd-receiver/internal/errors"
	configuredLogger "github.com/404minds/obd-receiver/internal/logger"
	"github.com/404minds/obd-receiver/pkg/sinocastel"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var logger = configuredLogger.Logger

type Handler struct {
	calibrations calibration.Source
	decoder      *sinocastel.Decoder
}

func NewHandler(calibrations calibration.Source, decoder *sinocastel.Decoder) *Handler {
	if decoder == nil {
		decoder = sinocastel.DefaultDecoder
	}
	return &Handler{calibrations: calibrations, decoder: decoder}
}

func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/decode", h.Decode)

	devices := router.Group("/devices")
	{
		devices.GET("/:id/calibration", h.GetCalibration)
		devices.PUT("/:id/calibration", h.PutCalibration)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()))
	}
}

func errorResponse(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

type calibrationResponse struct {
	DeviceID string  `json:"device_id"`
	OffsetKm float64 `json:"offset_km"`
}

// CalibrationRequest sets the offset directly, or derives it from the
// dashboard odometer and the device mileage read at install time.
type CalibrationRequest struct {
	OffsetKm          *float64 `json:"offset_km"`
	VehicleOdometerKm *float64 `json:"vehicle_odometer_km"`
	DeviceMileageKm   *float64 `json:"device_mileage_km"`
}

func (r CalibrationRequest) calibration() (sinocastel.OdometerCalibration, error) {
	switch {
	case r.OffsetKm != nil:
		return sinocastel.OdometerCalibration{OffsetKm: *r.OffsetKm}, nil
	case r.VehicleOdometerKm != nil && r.DeviceMileageKm != nil:
		return sinocastel.NewOdometerCalibration(*r.VehicleOdometerKm, *r.DeviceMileageKm), nil
	default:
		return sinocastel.OdometerCalibration{}, errors.New("need offset_km, or vehicle_odometer_km and device_mileage_km")
	}
}

func (h *Handler) GetCalibration(c *gin.Context) {
	deviceID := c.Param("id")
	cal, err := h.calibrations.Get(c.Request.Context(), deviceID)
	if errors.Is(err, errs.ErrCalibrationNotFound) {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, calibrationResponse{DeviceID: deviceID, OffsetKm: cal.OffsetKm})
}

func (h *Handler) PutCalibration(c *gin.Context) {
	var req CalibrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	cal, err := req.calibration()
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	deviceID := c.Param("id")
	if err := h.calibrations.Set(c.Request.Context(), deviceID, cal); err != nil {
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}
	logger.Info("calibration updated", zap.String("deviceId", deviceID), zap.Float64("offsetKm", cal.OffsetKm))
	c.JSON(http.StatusOK, calibrationResponse{DeviceID: deviceID, OffsetKm: cal.OffsetKm})
}

type DecodeRequest struct {
	Packet   string   `json:"packet" binding:"required"`
	OffsetKm *float64 `json:"offset_km"`
}

// Decode decodes a hex packet with the stored calibration of its device,
// unless the request carries its own offset.
func (h *Handler) Decode(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	buf, err := hex.DecodeString(strings.Join(strings.Fields(req.Packet), ""))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "packet is not valid hex")
		return
	}

	var cal sinocastel.OdometerCalibration
	if req.OffsetKm != nil {
		cal.OffsetKm = *req.OffsetKm
	} else if deviceID := sinocastel.PeekDeviceID(buf); deviceID != "" {
		cal = calibration.Resolve(c.Request.Context(), h.calibrations, deviceID)
	}

	packet, err := h.decoder.Decode(buf, cal)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	c.JSON(http.StatusOK, packet)
}
