package handler

import (
	"log/slog" // logger for unexpected failures
	"net/http" // HTTP status codes and cookies
	"strings"  // string manipulation utilities
	"time"     // cookie expiry

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/middleware"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Tokens       *service.TokenService
	Users        *repository.UserRepo
	SecureCookie bool // mark session cookies Secure (production)
	logger       *slog.Logger
}

func NewAuthHandler(tokens *service.TokenService, users *repository.UserRepo, secureCookie bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{Tokens: tokens, Users: users, SecureCookie: secureCookie, logger: logging.OrDiscard(logger)}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type refreshReq struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
type passwordReq struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type userResp struct {
	ID       uint64   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	IsBanned bool     `json:"isBanned"`
}

func toUserResp(u *model.User) userResp {
	return userResp{ID: u.ID, Username: u.Username, Email: u.Email, Roles: u.Roles, IsBanned: u.IsBanned}
}

// setSession stores the pair in the cookies the cookie bridge reads.
func (h *AuthHandler) setSession(c echo.Context, pair service.TokenPair) {
	c.SetCookie(&http.Cookie{
		Name: middleware.CookieAccess, Value: pair.AccessToken, Path: "/",
		Expires: pair.AccessExpires, HttpOnly: true, Secure: h.SecureCookie, SameSite: http.SameSiteStrictMode,
	})
	c.SetCookie(&http.Cookie{
		Name: middleware.CookieRefresh, Value: pair.RefreshToken, Path: "/",
		Expires: pair.RefreshExpires, HttpOnly: true, Secure: h.SecureCookie, SameSite: http.SameSiteStrictMode,
	})
}

// Register creates a user with the User role.  It does not log the user in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Tokens.Register(ctx, req.Username, strings.ToLower(req.Email), req.Password)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, toUserResp(u))
}

// Login verifies credentials and returns a fresh token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Tokens.Login(ctx, req.Username, req.Password)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	h.setSession(c, pair)
	return c.JSON(http.StatusOK, pair)
}

// Refresh exchanges an access token (expired or not) and its refresh token
// for a new pair.  Values missing from the body are taken from the session
// cookies.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.AccessToken == "" {
		if ck, err := c.Cookie(middleware.CookieAccess); err == nil {
			req.AccessToken = ck.Value
		}
	}
	if req.RefreshToken == "" {
		if ck, err := c.Cookie(middleware.CookieRefresh); err == nil {
			req.RefreshToken = ck.Value
		}
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "accessToken and refreshToken required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Tokens.Refresh(ctx, strings.TrimSpace(req.AccessToken), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	h.setSession(c, pair)
	return c.JSON(http.StatusOK, pair)
}

// EditPassword changes the caller's password.
func (h *AuthHandler) EditPassword(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var req passwordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Tokens.EditPassword(ctx, uid, req.OldPassword, req.NewPassword); err != nil {
		return writeError(c, h.logger, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Logout clears the session cookies.  The tokens themselves stay valid until
// they expire or the user is banned.
func (h *AuthHandler) Logout(c echo.Context) error {
	for _, name := range []string{middleware.CookieAccess, middleware.CookieRefresh} {
		c.SetCookie(&http.Cookie{Name: name, Value: "", Path: "/", Expires: time.Unix(0, 0), MaxAge: -1, HttpOnly: true})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, toUserResp(u))
}
