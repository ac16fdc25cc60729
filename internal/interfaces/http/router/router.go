package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIPrefix is the versioned prefix every API group is mounted under
const APIPrefix = "/api/v1"

// Group collects the routes of one API area until it is attached to the
// engine. Middleware given to a group applies to its routes and subgroups.
type Group struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	subgroups  []*Group
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewGroup creates a group mounted at prefix
func NewGroup(prefix string, middleware ...gin.HandlerFunc) *Group {
	return &Group{prefix: prefix, middleware: middleware}
}

// Handle registers handlers for method and path
func (g *Group) Handle(method, path string, handlers ...gin.HandlerFunc) *Group {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
	return g
}

func (g *Group) GET(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodGet, path, handlers...)
}

func (g *Group) POST(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodPost, path, handlers...)
}

func (g *Group) PUT(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodPut, path, handlers...)
}

func (g *Group) DELETE(path string, handlers ...gin.HandlerFunc) *Group {
	return g.Handle(http.MethodDelete, path, handlers...)
}

// Group adds a subgroup below g
func (g *Group) Group(prefix string, middleware ...gin.HandlerFunc) *Group {
	sub := NewGroup(prefix, middleware...)
	g.subgroups = append(g.subgroups, sub)
	return sub
}

// Attach registers the group's routes below parent
func (g *Group) Attach(parent *gin.RouterGroup) {
	rg := parent.Group(g.prefix, g.middleware...)
	for _, r := range g.routes {
		rg.Handle(r.method, r.path, r.handlers...)
	}
	for _, sub := range g.subgroups {
		sub.Attach(rg)
	}
}
