package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/forum-core/internal/handler"    // handlers that translate HTTP to service calls
	"github.com/iliyamo/forum-core/internal/middleware" // authentication and role enforcement
	"github.com/iliyamo/forum-core/internal/model"      // role names
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the credential endpoints under /v1/auth and the
// authenticated profile endpoints.  limit guards the endpoints that accept
// secrets; auth is the JWT middleware.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, auth, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limit)
	g.POST("/login", a.Login, limit)
	// The refresh endpoint accepts expired access tokens, so it is not
	// behind auth.
	g.POST("/refresh", a.Refresh, limit)
	g.POST("/logout", a.Logout)
	g.POST("/password", a.EditPassword, auth, limit)

	e.GET("/v1/me", a.Me, auth)
}

// RegisterBans registers ban administration.  Every route requires the Admin
// role.  cache fronts the audit-log read.
func RegisterBans(e *echo.Echo, b *handler.BanHandler, auth, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", auth)
	admin := middleware.RequireRole(model.RoleAdmin)

	g.POST("/bans", b.Create, admin)
	g.GET("/bans", b.List, admin)
	g.GET("/bans/:id", b.Get, admin)
	g.PUT("/bans/:id", b.Update, admin)
	g.DELETE("/bans/:id", b.Delete, admin)
	g.GET("/bans/:id/logs", b.Logs, admin, cache)
	g.GET("/users/:id/ban", b.GetByUser, admin)
	g.DELETE("/users/:id/ban", b.DeleteByUser, admin)
}

// RegisterForum registers topics and comments.  Posting requires the User
// role, which a ban takes away; moderating topic state requires Admin.
func RegisterForum(e *echo.Echo, f *handler.ForumHandler, auth, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", auth)
	member := middleware.RequireRole(model.RoleUser)
	staff := middleware.RequireRole(model.RoleUser, model.RoleAdmin)

	g.POST("/topics", f.CreateTopic, member)
	g.GET("/topics", f.SearchTopics)
	g.GET("/topics/:id", f.GetTopic)
	g.PUT("/topics/:id/state", f.ChangeTopicState, middleware.RequireRole(model.RoleAdmin))
	g.GET("/topics/:id/logs", f.TopicLogs, cache)

	g.POST("/comments", f.CreateComment, member)
	g.PUT("/comments/:id", f.UpdateComment, member)
	g.DELETE("/comments/:id", f.DeleteComment, staff)
	g.GET("/comments/:id/logs", f.CommentLogs, cache)
}

// RegisterUsers registers account endpoints.  A user's audit trail is open
// to that user and to admins; the check runs before cache so cached trails
// are never served to anyone else.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, auth, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", auth)
	g.GET("/users/:id/logs", u.Logs, middleware.RequireSelfOrRole("id", model.RoleAdmin), cache)
}
