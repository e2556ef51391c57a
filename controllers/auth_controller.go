package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Lakshima2000/paddyHealth-backend/config"
	"github.com/Lakshima2000/paddyHealth-backend/models"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

// AuthController handles registration, login and profile requests.
type AuthController struct {
	db *gorm.DB
	// sendMail is swapped out in tests
	sendMail func(to, subject, body string) error
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db, sendMail: utils.SendMail}
}

// Register creates a local account and sends a best-effort welcome mail.
func (a *AuthController) Register(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = utils.StripTags(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, "Missing required fields")
		return
	}

	var existing models.User
	if err := a.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40901, "Email already registered")
		return
	}
	if err := a.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40902, "Username already taken")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to hash password")
		return
	}

	user := models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
	}
	if err := a.db.Create(&user).Error; err != nil {
		// a concurrent registration may win between the lookups and the insert
		if isUniqueViolation(err) {
			utils.Error(ctx, http.StatusConflict, 40903, "Email or username already registered")
			return
		}
		utils.Sugar.Errorw("create user failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	go a.sendWelcome(user.Email, user.Username)

	utils.Created(ctx, "User registered successfully", nil)
}

func (a *AuthController) sendWelcome(to, username string) {
	subject, body := utils.WelcomeMail(username)
	if err := a.sendMail(to, subject, body); err != nil {
		utils.Sugar.Warnw("failed to send welcome email", "to", to, "error", err)
	}
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// Login verifies credentials and issues an access token.
func (a *AuthController) Login(ctx *gin.Context) {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40004, "invalid request payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		utils.Error(ctx, http.StatusBadRequest, 40002, "Missing required fields")
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "Invalid credentials")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "Invalid credentials")
		return
	}

	token, err := utils.GenerateToken(user.ID, user.Username, config.Get().JWTExpiry())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50004, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{"access_token": token})
}

// Profile returns the authenticated user's account details.
func (a *AuthController) Profile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}

	var user models.User
	if err := a.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "User not found")
		return
	}

	utils.Success(ctx, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"username":   user.Username,
		"created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	})
}
