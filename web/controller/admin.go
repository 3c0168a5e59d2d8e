package controller

import (
	"errors"
	"net/http"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/util/metrics"
	"github.com/memberpanel/memberpanel/web/entity"
	"github.com/memberpanel/memberpanel/web/middleware"
	"github.com/memberpanel/memberpanel/web/service"

	"github.com/gin-gonic/gin"
)

const (
	recentAuditEntries = 15
	recentWarnings     = 10
)

// AdminController lists the accounts and changes their roles.
type AdminController struct {
	userService  service.CredentialStore
	roleService  *service.RoleService
	auditService *service.AuditLogService
}

// NewAdminController creates a new AdminController and registers its admin-only routes.
func NewAdminController(g *gin.RouterGroup, userService service.CredentialStore, roleService *service.RoleService, auditService *service.AuditLogService) *AdminController {
	a := &AdminController{
		userService:  userService,
		roleService:  roleService,
		auditService: auditService,
	}
	a.initRouter(g)
	return a
}

func (a *AdminController) initRouter(g *gin.RouterGroup) {
	admin := g.Group("", middleware.RequireAdmin(a.roleService))
	admin.GET("/admin", a.index)
	admin.POST("/promote/:email", a.promote)
	admin.POST("/demote/:email", a.demote)
}

func (a *AdminController) index(c *gin.Context) {
	identity, err := middleware.Identity(c)
	if err != nil {
		internalError(c, "errors.admin", err)
		return
	}

	users, err := a.userService.ListAll(c.Request.Context())
	if err != nil {
		internalError(c, "errors.admin", err)
		return
	}

	var logs []model.AuditLog
	if a.auditService != nil {
		logs, err = a.auditService.Recent(c.Request.Context(), recentAuditEntries)
		if err != nil {
			logger.Warning("Unable to load recent activity: ", err)
		}
	}

	html(c, "admin.html", "pages.admin.title", gin.H{
		"user":     identity,
		"users":    entity.NewUserViews(users, identity.Email),
		"logs":     logs,
		"warnings": logger.GetLogs(recentWarnings, "WARNING"),
	})
}

func (a *AdminController) promote(c *gin.Context) {
	a.setRole(c, model.RoleAdmin)
}

func (a *AdminController) demote(c *gin.Context) {
	a.setRole(c, model.RoleUser)
}

// setRole applies role to the account named in the path and returns to the listing.
// Unknown accounts, self-demotion and demoting the last admin are logged and otherwise ignored.
func (a *AdminController) setRole(c *gin.Context, role model.Role) {
	identity, err := middleware.Identity(c)
	if err != nil {
		internalError(c, "errors.roleChange", err)
		return
	}

	target := c.Param("email")
	ip := getRemoteIp(c)
	if role == model.RoleAdmin {
		err = a.roleService.Promote(c.Request.Context(), identity.Email, target, ip)
	} else {
		err = a.roleService.Demote(c.Request.Context(), identity.Email, target, ip)
	}

	switch {
	case err == nil:
		metrics.RoleChanges.WithLabelValues(string(role)).Inc()
	case errors.Is(err, service.ErrUserNotFound):
		logger.Warningf("%s asked to set role %s on unknown account %q", identity.Email, role, target)
	case errors.Is(err, service.ErrSelfDemotion):
		logger.Warningf("%s tried to demote themselves", identity.Email)
	case errors.Is(err, service.ErrLastAdmin):
		logger.Warningf("%s tried to demote %s, the last admin", identity.Email, target)
	default:
		internalError(c, "errors.roleChange", err)
		return
	}
	c.Redirect(http.StatusFound, "/admin")
}
