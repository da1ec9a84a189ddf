package server

import (
	"net/http"

	"github.com/atikulmunna/sitekeeper/internal/model"
	"github.com/gin-gonic/gin"
)

const (
	welcomeMessage     = "Welcome to my Node Web Server using Express & Handlebars."
	badRequestMessage  = "Bad Request: Unable to Handle Request."
	maintenanceTitle   = "Pardon Our Dust. :("
	maintenanceMessage = "Site Under Maintenance. We Will Be Right Back!"
)

func (s *Server) home(c *gin.Context) {
	c.HTML(http.StatusOK, "home", model.ViewModel{
		"pageTitle":      "Home Page",
		"welcomeMessage": welcomeMessage,
	})
}

func (s *Server) about(c *gin.Context) {
	c.HTML(http.StatusOK, "about", model.ViewModel{
		"pageTitle": "About Page",
	})
}

// bad answers 200 with an error-shaped body; it is a fixed demonstration payload.
func (s *Server) bad(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"errorMessage": badRequestMessage,
	})
}

func (s *Server) maintenance(c *gin.Context) {
	c.HTML(http.StatusOK, "maintenance", model.ViewModel{
		"pageTitle":      maintenanceTitle,
		"welcomeMessage": maintenanceMessage,
	})
}
