package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheckHandler reports service liveness.
// GET /api/health
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "fiatramp",
		"api":     "healthy",
	})
}

// PingHandler is the minimal reachability probe.
// GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// envelope is the uniform response wrapper used by every business endpoint.
func envelope(c *gin.Context, status int, success bool, message string, responseObject interface{}) {
	c.JSON(status, gin.H{
		"success":        success,
		"message":        message,
		"responseObject": responseObject,
		"statusCode":     status,
	})
}
