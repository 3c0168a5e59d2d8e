// Package controller provides the HTTP handlers of the members site: the public pages,
// signup and login, the members area and the admin area.
package controller

import (
	"github.com/memberpanel/memberpanel/web/locale"

	"github.com/gin-gonic/gin"
)

// I18nWeb retrieves an internationalized message for the web interface based on the current locale.
func I18nWeb(c *gin.Context, name string, params ...string) string {
	return locale.Localize(locale.FromContext(c), name, params...)
}
