// auth.go implements local username/password authentication: login, registration of new
// staff accounts by an administrator, the current-user profile, and logout.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/auth"
	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
	"github.com/amiga-fleet/amiga-backend/internal/middleware"
)

// AuthHandlers handles authentication endpoints
type AuthHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, db *sqlx.DB) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(db),
	}
}

// LoginRequest accepts either the username or the email in Username
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Log in
// @Description  Exchange a username (or email) and password for a JWT.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  map[string]interface{}  "token, user"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Router       /api/auth/login [post]
// LoginHandler authenticates a user
// POST /api/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
			return
		}

		ctx := c.Request.Context()
		var (
			user *models.User
			err  error
		)
		if strings.Contains(req.Username, "@") {
			user, err = h.userRepo.GetUserByEmail(ctx, req.Username)
		} else {
			user, err = h.userRepo.GetUserByUsername(ctx, req.Username)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to authenticate"})
			return
		}
		// one message for every failure so that usernames cannot be probed
		if user == nil || !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := auth.GenerateJWT(user.ID, user.Email, user.Role, h.cfg.Auth.TokenExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
			return
		}
		if err := h.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
			slog.Warn("failed to update last login", "user_id", user.ID, "error", err)
		}

		middleware.SetUser(c, user)
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  user,
		})
	}
}

// RegisterRequest creates a staff account
type RegisterRequest struct {
	Username       string  `json:"username" binding:"required"`
	Email          string  `json:"email" binding:"required,email"`
	Password       string  `json:"password" binding:"required"`
	FirstName      string  `json:"firstName" binding:"required"`
	SecondName     *string `json:"secondName"`
	LastName       string  `json:"lastName" binding:"required"`
	SecondLastName *string `json:"secondLastName"`
	Role           string  `json:"role"`
	Phone          *string `json:"phone"`
	Position       *string `json:"position"`
	Department     *string `json:"department"`
}

// RegisterHandler creates a new user. Only administrators reach it.
// POST /api/auth/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		user, status, msg := createUser(c, h.cfg, h.userRepo, &req)
		if user == nil {
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// MeHandler returns the authenticated user
// GET /api/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// LogoutHandler acknowledges a logout. Tokens are stateless, so the client discards its
// copy; the request itself is what the audit trail records. The route uses optional auth
// so an expired token still logs out, attributed when the token is valid.
// GET /api/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

var validRoles = map[string]bool{
	models.RoleAdmin:    true,
	models.RoleGestor:   true,
	models.RoleOperator: true,
	models.RoleViewer:   true,
}

// createUser validates and stores a new account, returning the user or an HTTP status
// and message describing why it was refused
func createUser(c *gin.Context, cfg *config.Config, repo *repositories.UserRepository, req *RegisterRequest) (*models.User, int, string) {
	ctx := c.Request.Context()

	if req.Role == "" {
		req.Role = models.RoleViewer
	}
	if !validRoles[req.Role] {
		return nil, http.StatusBadRequest, "Invalid role"
	}

	hash, err := auth.HashPassword(req.Password, cfg.Auth.BcryptCost)
	if err != nil {
		return nil, http.StatusBadRequest, err.Error()
	}

	if existing, err := repo.GetUserByUsername(ctx, req.Username); err != nil {
		return nil, http.StatusInternalServerError, "Failed to check username"
	} else if existing != nil {
		return nil, http.StatusConflict, "Username already exists"
	}
	if existing, err := repo.GetUserByEmail(ctx, req.Email); err != nil {
		return nil, http.StatusInternalServerError, "Failed to check email"
	} else if existing != nil {
		return nil, http.StatusConflict, "Email already exists"
	}

	user := &models.User{
		Username:       req.Username,
		Email:          req.Email,
		PasswordHash:   hash,
		FirstName:      req.FirstName,
		SecondName:     req.SecondName,
		LastName:       req.LastName,
		SecondLastName: req.SecondLastName,
		Role:           req.Role,
		Phone:          req.Phone,
		Position:       req.Position,
		Department:     req.Department,
		IsActive:       true,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, http.StatusInternalServerError, "Failed to create user"
	}
	return user, http.StatusCreated, ""
}
