package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/util/crypto"
	"github.com/memberpanel/memberpanel/util/metrics"
	"github.com/memberpanel/memberpanel/web/entity"
	"github.com/memberpanel/memberpanel/web/service"
	"github.com/memberpanel/memberpanel/web/session"

	"github.com/gin-gonic/gin"
)

// IndexController handles the landing page, signup, login and logout.
type IndexController struct {
	authService  *service.AuthService
	auditService *service.AuditLogService
}

// NewIndexController creates a new IndexController and initializes its routes. limiters run
// before the form submissions.
func NewIndexController(g *gin.RouterGroup, authService *service.AuthService, auditService *service.AuditLogService, limiters ...gin.HandlerFunc) *IndexController {
	a := &IndexController{authService: authService, auditService: auditService}
	a.initRouter(g, limiters)
	return a
}

func (a *IndexController) initRouter(g *gin.RouterGroup, limiters []gin.HandlerFunc) {
	g.GET("/", a.index)
	g.GET("/signup", a.signupPage)
	g.GET("/login", a.loginPage)
	g.GET("/logout", a.logout)

	forms := g.Group("", limiters...)
	forms.POST("/signup", a.signup)
	forms.POST("/login", a.login)
}

// index shows the landing page, greeting the user when a session is open.
func (a *IndexController) index(c *gin.Context) {
	user := session.GetLoginUser(c)
	if err := session.StoreError(c); err != nil {
		logger.Warning("landing page rendered anonymously, session store failed: ", err)
	}
	html(c, "index.html", "pages.index.title", gin.H{"user": user})
}

func (a *IndexController) signupPage(c *gin.Context) {
	html(c, "signup.html", "pages.signup.title", nil)
}

func (a *IndexController) loginPage(c *gin.Context) {
	html(c, "login.html", "pages.login.title", nil)
}

// signup registers a user account and opens a session for it.
func (a *IndexController) signup(c *gin.Context) {
	var form entity.SignupForm
	if err := c.ShouldBind(&form); err != nil {
		metrics.Signups.WithLabelValues("invalid").Inc()
		retryMsg(c, http.StatusBadRequest, validationMsg(c, err), "/signup")
		return
	}

	user, err := a.authService.Signup(c.Request.Context(), form.Name, form.Email, form.Password, model.Role(form.Role))
	if errors.Is(err, service.ErrDuplicateEmail) {
		metrics.Signups.WithLabelValues("duplicate").Inc()
		retryMsg(c, http.StatusBadRequest, I18nWeb(c, "errors.duplicateEmail"), "/signup")
		return
	}
	if errors.Is(err, crypto.ErrPasswordTooLong) {
		metrics.Signups.WithLabelValues("invalid").Inc()
		msg := I18nWeb(c, "validation.maxbytes", "Field==password", "Param=="+strconv.Itoa(crypto.MaxPasswordBytes))
		retryMsg(c, http.StatusBadRequest, msg, "/signup")
		return
	}
	if err != nil {
		metrics.Signups.WithLabelValues("error").Inc()
		internalError(c, "errors.signup", err)
		return
	}

	if err := session.SetLoginUser(c, session.IdentityOf(user)); err != nil {
		internalError(c, "errors.signup", err)
		return
	}

	metrics.Signups.WithLabelValues("success").Inc()
	logger.Infof("%s signed up, IP: %s", user.Email, getRemoteIp(c))
	audit(c, a.auditService, service.AuditEntry{
		ActorEmail:  user.Email,
		Action:      model.ActionSignup,
		TargetEmail: user.Email,
	})
	c.Redirect(http.StatusFound, "/members")
}

// login authenticates the user and opens a session, sending admins to the admin area.
func (a *IndexController) login(c *gin.Context) {
	var form entity.LoginForm
	if err := c.ShouldBind(&form); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		retryMsg(c, http.StatusBadRequest, validationMsg(c, err), "/login")
		return
	}

	user, err := a.authService.Login(c.Request.Context(), form.Email, form.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		logger.Warningf("failed login for %q, IP: %s", form.Email, getRemoteIp(c))
		retryMsg(c, http.StatusUnauthorized, I18nWeb(c, "errors.invalidCredentials"), "/login")
		return
	}
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		internalError(c, "errors.login", err)
		return
	}

	if err := session.SetLoginUser(c, session.IdentityOf(user)); err != nil {
		internalError(c, "errors.login", err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	logger.Infof("%s logged in successfully, IP: %s", user.Email, getRemoteIp(c))
	audit(c, a.auditService, service.AuditEntry{
		ActorEmail: user.Email,
		Action:     model.ActionLogin,
	})

	if user.IsAdmin() {
		c.Redirect(http.StatusFound, "/admin")
		return
	}
	c.Redirect(http.StatusFound, "/members")
}

// logout destroys the session and always returns to the landing page.
func (a *IndexController) logout(c *gin.Context) {
	user := session.GetLoginUser(c)
	if err := session.ClearSession(c); err != nil {
		logger.Warning("Unable to destroy session: ", err)
	} else if user != nil {
		logger.Infof("%s logged out successfully", user.Email)
		audit(c, a.auditService, service.AuditEntry{
			ActorEmail: user.Email,
			Action:     model.ActionLogout,
		})
	}
	c.Redirect(http.StatusFound, "/")
}
