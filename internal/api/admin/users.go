// users.go implements staff account management: listing, lookup, creation, update and
// deletion. Updates are recorded field by field in the audit trail.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/audit"
	"github.com/amiga-fleet/amiga-backend/internal/auth"
	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
	"github.com/amiga-fleet/amiga-backend/internal/middleware"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
	recorder *audit.Recorder
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(cfg *config.Config, db *sqlx.DB, recorder *audit.Recorder) *UserHandlers {
	return &UserHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(db),
		recorder: recorder,
	}
}

// @Summary      List users
// @Description  Paginated list of staff accounts, filterable by role, active flag and a free-text search.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        role      query  string  false  "Role"
// @Param        isActive  query  bool    false  "Active flag"
// @Param        search    query  string  false  "Matches username, email and names"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        limit     query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: map"
// @Router       /api/users [get]
// ListUsersHandler lists users
// GET /api/users
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, offset := pagination(c)
		filters := repositories.UserFilters{
			Role:     queryPtr(c, "role"),
			IsActive: queryBool(c, "isActive"),
			Search:   queryPtr(c, "search"),
		}

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users":      users,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

// GetUserHandler retrieves a user by ID
// GET /api/users/:id
func (h *UserHandlers) GetUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := h.loadUser(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// CreateUserHandler creates a user; the body is the same as registration
// POST /api/users
func (h *UserHandlers) CreateUserHandler() gin.HandlerFunc {
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

// UpdateUserRequest carries the fields to change; absent fields keep their value
type UpdateUserRequest struct {
	Email          *string `json:"email" binding:"omitempty,email"`
	Password       *string `json:"password"`
	FirstName      *string `json:"firstName"`
	SecondName     *string `json:"secondName"`
	LastName       *string `json:"lastName"`
	SecondLastName *string `json:"secondLastName"`
	Role           *string `json:"role"`
	Phone          *string `json:"phone"`
	Position       *string `json:"position"`
	Department     *string `json:"department"`
	IsActive       *bool   `json:"isActive"`
}

// @Summary      Update user
// @Description  Partially update a staff account. A new password is hashed and stored but never recorded in the audit trail.
// @Tags         Users
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "Fields to update"
// @Success      200  {object}  map[string]interface{}  "user: models.User"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/users/{id} [put]
// UpdateUserHandler updates a user
// PUT /api/users/:id
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}
		if req.Role != nil && !validRoles[*req.Role] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
			return
		}

		existing, ok := h.loadUser(c)
		if !ok {
			return
		}
		updated := *existing
		applyUserUpdate(&updated, &req)

		ctx := c.Request.Context()
		if req.Password != nil {
			hash, err := auth.HashPassword(*req.Password, h.cfg.Auth.BcryptCost)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := h.userRepo.UpdatePassword(ctx, updated.ID, hash); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
				return
			}
		}
		if err := h.userRepo.UpdateUser(ctx, &updated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}

		logChanges(c, h.recorder, audit.ChangeSet{
			EntityType: audit.EntityUser,
			EntityID:   updated.ID,
			EntityName: updated.DisplayName(),
			Action:     "UPDATE_USER",
		}, existing, &updated)

		c.JSON(http.StatusOK, gin.H{"user": updated})
	}
}

func applyUserUpdate(u *models.User, req *UpdateUserRequest) {
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.SecondName != nil {
		u.SecondName = req.SecondName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.SecondLastName != nil {
		u.SecondLastName = req.SecondLastName
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Phone != nil {
		u.Phone = req.Phone
	}
	if req.Position != nil {
		u.Position = req.Position
	}
	if req.Department != nil {
		u.Department = req.Department
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
}

// DeleteUserHandler deletes a user. Administrators cannot delete their own account.
// DELETE /api/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id == c.GetString(middleware.ContextUserID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete your own account"})
			return
		}

		user, ok := h.loadUser(c)
		if !ok {
			return
		}
		if err := h.userRepo.DeleteUser(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted", "user": user})
	}
}

// loadUser fetches the :id user, writing 404/500 and returning false when it cannot
func (h *UserHandlers) loadUser(c *gin.Context) (*models.User, bool) {
	user, err := h.userRepo.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
		return nil, false
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return nil, false
	}
	return user, true
}
