package router

import (
	"testing"

	"github.com/onsi/gomega"

	"github.com/School42/webserv/internal/config"
)

func testServers() []config.ServerConfig {
	return []config.ServerConfig{
		{
			Listen:      []config.ListenEndpoint{{Port: 80}},
			ServerNames: []string{"example.com", "*.example.com"},
			Root:        "/var/www",
			Locations: []config.LocationConfig{
				{Path: "/", Root: "/var/www", RootSet: true, AllowedMethods: []string{"GET", "POST"}},
				{Path: "/images/", Root: "/var/www/images", RootSet: true, AllowedMethods: []string{"GET"}},
				{Path: "/old", HasReturn: true, ReturnCode: 301, ReturnValue: "/new", AllowedMethods: []string{"GET"}},
				{Path: "/cgi-bin", Root: "/var/www/cgi-bin", RootSet: true, CGIExtensions: []string{".py"}, AllowedMethods: []string{"GET", "POST"}},
			},
		},
		{
			Listen: []config.ListenEndpoint{{Port: 80}},
			Root:   "/var/default",
			Locations: []config.LocationConfig{
				{Path: "/", Root: "/var/default", RootSet: true, AllowedMethods: []string{"GET"}},
			},
		},
	}
}

func TestFindServerMatchesExactName(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	s := r.FindServer("example.com", 80)
	g.Expect(s).NotTo(gomega.BeNil())
	g.Expect(s.Root).To(gomega.Equal("/var/www"))
}

func TestFindServerMatchesWildcard(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	s := r.FindServer("sub.example.com", 80)
	g.Expect(s).NotTo(gomega.BeNil())
	g.Expect(s.Root).To(gomega.Equal("/var/www"))
}

func TestFindServerFallsBackToFirstOnPort(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	s := r.FindServer("unknown.test", 80)
	g.Expect(s).NotTo(gomega.BeNil())
	g.Expect(s.Root).To(gomega.Equal("/var/www"))
}

func TestFindLocationLongestPrefixWins(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	server := r.FindServer("example.com", 80)
	loc := r.FindLocation(server, "/images/cat.png")
	g.Expect(loc).NotTo(gomega.BeNil())
	g.Expect(loc.Path).To(gomega.Equal("/images/"))
}

func TestFindLocationRootIsFallback(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	server := r.FindServer("example.com", 80)
	loc := r.FindLocation(server, "/anything/else")
	g.Expect(loc).NotTo(gomega.BeNil())
	g.Expect(loc.Path).To(gomega.Equal("/"))
}

func TestRouteDetectsRedirectBeforeMethodCheck(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	result := r.Route("example.com", 80, "DELETE", "/old")
	g.Expect(result.Matched).To(gomega.BeTrue())
	g.Expect(result.Location.HasReturn).To(gomega.BeTrue())

	code, url := Redirect(result.Location)
	g.Expect(code).To(gomega.Equal(301))
	g.Expect(url).To(gomega.Equal("/new"))
}

func TestRouteRejectsDisallowedMethod(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	result := r.Route("example.com", 80, "DELETE", "/images/cat.png")
	g.Expect(result.Matched).To(gomega.BeFalse())
	g.Expect(result.ErrorCode).To(gomega.Equal(405))
}

func TestRouteRejectsPathTraversal(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	result := r.Route("example.com", 80, "GET", "/foo..bar")
	g.Expect(result.Matched).To(gomega.BeFalse())
	g.Expect(result.ErrorCode).To(gomega.Equal(403))
}

func TestRouteResolvesFilesystemPath(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	result := r.Route("example.com", 80, "GET", "/images/cat.png")
	g.Expect(result.Matched).To(gomega.BeTrue())
	g.Expect(result.ResolvedPath).To(gomega.Equal("/var/www/images/cat.png"))
}

func TestIsCGIRequestMatchesExtension(t *testing.T) {
	g := gomega.NewWithT(t)
	r := New(testServers())

	server := r.FindServer("example.com", 80)
	loc := r.FindLocation(server, "/cgi-bin/app.py")
	g.Expect(IsCGIRequest(loc, "/cgi-bin/app.py")).To(gomega.BeTrue())
	g.Expect(IsCGIRequest(loc, "/cgi-bin/app.txt")).To(gomega.BeFalse())
}

func TestNormalizePathIsIdempotent(t *testing.T) {
	g := gomega.NewWithT(t)

	cases := []string{"/a/b/../c", "/a//b/./c/", "/../../etc/passwd", ""}
	for _, in := range cases {
		once := normalizePath(in)
		twice := normalizePath(once)
		g.Expect(twice).To(gomega.Equal(once), "input %q", in)
	}
}

func TestURLDecodeHandlesPercentAndPlus(t *testing.T) {
	g := gomega.NewWithT(t)

	g.Expect(urlDecode("a%20b+c")).To(gomega.Equal("a b c"))
	g.Expect(urlDecode("%2e%2e")).To(gomega.Equal(".."))
}
