package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

const (
	// APIPrefix is where the authenticated API is mounted
	APIPrefix = "/api/v1"
	// StripeWebhookPath receives gateway events, outside APIPrefix
	StripeWebhookPath = "/webhooks/stripe"
)

// DomainGroup is the route table of one domain. Tables are declared in
// routes.go and mounted once, under the principal middleware.
type DomainGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	subgroups  []*DomainGroup
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

func NewDomainGroup(prefix string) *DomainGroup {
	return &DomainGroup{prefix: prefix}
}

// Use adds middleware that runs for this group and its subgroups
func (g *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	g.middleware = append(g.middleware, middleware...)
	return g
}

func (g *DomainGroup) Handle(method, relativePath string, handlers ...gin.HandlerFunc) *DomainGroup {
	g.routes = append(g.routes, route{method: method, path: relativePath, handlers: handlers})
	return g
}

func (g *DomainGroup) GET(relativePath string, handlers ...gin.HandlerFunc) *DomainGroup {
	return g.Handle(http.MethodGet, relativePath, handlers...)
}

func (g *DomainGroup) POST(relativePath string, handlers ...gin.HandlerFunc) *DomainGroup {
	return g.Handle(http.MethodPost, relativePath, handlers...)
}

// Group nests a table under prefix
func (g *DomainGroup) Group(prefix string) *DomainGroup {
	sub := NewDomainGroup(prefix)
	g.subgroups = append(g.subgroups, sub)
	return sub
}

// Mount registers the table and its subgroups on parent
func (g *DomainGroup) Mount(parent gin.IRouter) {
	rg := parent.Group(g.prefix, g.middleware...)
	for _, r := range g.routes {
		rg.Handle(r.method, r.path, r.handlers...)
	}
	for _, sub := range g.subgroups {
		sub.Mount(rg)
	}
}

// Endpoints lists "METHOD /path" for every route, relative to where the
// group is mounted
func (g *DomainGroup) Endpoints() []string {
	return g.endpoints("/")
}

func (g *DomainGroup) endpoints(base string) []string {
	base = path.Join(base, g.prefix)
	out := make([]string, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, r.method+" "+path.Join(base, r.path))
	}
	for _, sub := range g.subgroups {
		out = append(out, sub.endpoints(base)...)
	}
	return out
}
