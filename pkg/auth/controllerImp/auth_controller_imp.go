package controllerImp

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"triage/entities"
)

type AuthCtrl struct {
	db     *gorm.DB
	secret string
}

func New(db *gorm.DB, secret string) *AuthCtrl { return &AuthCtrl{db: db, secret: secret} }

type loginReq struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

// DevLogin finds or creates the named user and issues a signed token. There
// is no password check; real deployments front this with SSO.
func (h *AuthCtrl) DevLogin(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil || req.Username == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "username required"})
	}
	if req.Role == "" {
		req.Role = entities.RoleEndUser
	}
	switch req.Role {
	case entities.RoleEndUser, entities.RoleSupportEngineer, entities.RoleAdmin:
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown role"})
	}

	var user entities.User
	err := h.db.Where("username = ?", req.Username).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		user = entities.User{Username: req.Username, Role: req.Role, Department: req.Department}
		err = h.db.Create(&user).Error
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":        user.ID,
		"username":   user.Username,
		"role":       user.Role,
		"department": user.Department,
		"exp":        time.Now().Add(24 * time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(h.secret))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"token": signed, "user": user})
}

func (h *AuthCtrl) WhoAmI(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"uid":        c.Get("uid"),
		"username":   c.Get("username"),
		"role":       c.Get("role"),
		"department": c.Get("department"),
	})
}
