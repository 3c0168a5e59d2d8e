package controller

import (
	"github.com/memberpanel/memberpanel/util/random"
	"github.com/memberpanel/memberpanel/web/middleware"

	"github.com/gin-gonic/gin"
)

// MembersController serves the members-only area.
type MembersController struct {
	images []string
}

// NewMembersController registers /members; images are asset paths of the welcome pictures.
func NewMembersController(g *gin.RouterGroup, images []string) *MembersController {
	a := &MembersController{images: images}
	a.initRouter(g)
	return a
}

func (a *MembersController) initRouter(g *gin.RouterGroup) {
	g.GET("/members", middleware.RequireLogin(), a.index)
}

// index greets the user with a randomly chosen welcome picture.
func (a *MembersController) index(c *gin.Context) {
	identity, err := middleware.Identity(c)
	if err != nil {
		internalError(c, "errors.members", err)
		return
	}
	html(c, "members.html", "pages.members.title", gin.H{
		"user":  identity,
		"image": random.Pick(a.images),
	})
}
