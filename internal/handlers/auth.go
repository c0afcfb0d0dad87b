package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
  "github.com/velora-crm/outreach-backend/internal/services"
)

type AuthHandler struct {
  authService       services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
  return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Login(c *gin.Context) {
  var req struct {
    Username      string      `json:"username"`
    Password      string      `json:"password"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
    return
  }
  accessToken, err := ah.authService.Login(c.Request.Context(), req.Username, req.Password)
  if err != nil {
    c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
    return
  }
  expiresIn := int(ah.authService.AccessTTL().Seconds())
  c.JSON(http.StatusOK, gin.H{"access_token": accessToken, "expires_in": expiresIn})
}
