package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/memberpanel/memberpanel/config"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/web/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// getRemoteIp returns the client address. Forwarding headers count only when the
// request came through one of the engine's trusted proxies.
func getRemoteIp(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return c.Request.RemoteAddr
}

// html renders an HTML template with the provided data and title.
func html(c *gin.Context, name string, title string, data gin.H) {
	htmlStatus(c, http.StatusOK, name, title, data)
}

func htmlStatus(c *gin.Context, code int, name string, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["title"] = title
	data["request_uri"] = c.Request.RequestURI
	c.HTML(code, name, getContext(data))
}

// getContext adds version and other context data to the provided gin.H.
func getContext(h gin.H) gin.H {
	a := gin.H{
		"cur_ver": config.GetVersion(),
	}
	for key, value := range h {
		a[key] = value
	}
	return a
}

// retryMsg answers with msg followed by a link back to the form at retry. msg is
// always a server-side message, never echoed input.
func retryMsg(c *gin.Context, code int, msg string, retry string) {
	body := msg + `<br><a href="` + retry + `">` + I18nWeb(c, "errors.tryAgain") + `</a>`
	c.Data(code, "text/html; charset=utf-8", []byte(body))
}

// internalError logs err and answers 500 with the generic message under key.
func internalError(c *gin.Context, key string, err error) {
	logger.Error(c.Request.Method, " ", c.Request.URL.Path, " failed: ", err)
	c.String(http.StatusInternalServerError, I18nWeb(c, key))
	c.Abort()
}

// validationMsg renders the first binding failure of err.
func validationMsg(c *gin.Context, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return I18nWeb(c, "validation.malformed")
	}

	fe := verrs[0]
	field := "Field==" + strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "email", "max", "maxbytes", "oneof":
		return I18nWeb(c, "validation."+fe.Tag(), field, "Param=="+fe.Param())
	default:
		return I18nWeb(c, "validation.invalid", field)
	}
}

// audit records entry with the request's address and user agent. Failures are logged
// by the audit service and do not affect the response.
func audit(c *gin.Context, auditService *service.AuditLogService, entry service.AuditEntry) {
	if auditService == nil {
		return
	}
	entry.IP = getRemoteIp(c)
	entry.UserAgent = c.Request.UserAgent()
	_ = auditService.LogAction(c.Request.Context(), entry)
}

// NotFound renders the 404 page.
func NotFound(c *gin.Context) {
	htmlStatus(c, http.StatusNotFound, "404.html", "pages.notFound.title", nil)
}
