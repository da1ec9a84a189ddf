package server

import (
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

// Stage is one fallback step for requests no route matched. Stages run in
// order and the first whose Match reports true handles the request; later
// stages never see it.
type Stage struct {
	Name   string
	Match  func(c *gin.Context) bool
	Handle gin.HandlerFunc
}

// Stages returns the fallback order: maintenance, then static files.
// While maintenance is on it claims every request, so static assets are
// unreachable.
func (s *Server) Stages() []Stage {
	return []Stage{
		{
			Name:   "maintenance",
			Match:  func(*gin.Context) bool { return s.cfg.Maintenance },
			Handle: s.maintenance,
		},
		{
			Name:   "static",
			Match:  s.hasStaticFile,
			Handle: s.serveStatic,
		},
	}
}

func runStages(stages []Stage) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, st := range stages {
			if st.Match(c) {
				st.Handle(c)
				return
			}
		}
		c.String(http.StatusNotFound, "404 page not found")
	}
}

// staticName maps a request path to a name inside the public directory.
// It returns false for paths that cannot name a file there.
func staticName(urlPath string) (string, bool) {
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

func (s *Server) hasStaticFile(c *gin.Context) bool {
	if s.public == nil {
		return false
	}
	name, ok := staticName(c.Request.URL.Path)
	if !ok {
		return false
	}
	info, err := fs.Stat(s.public, name)
	return err == nil && info.Mode().IsRegular()
}

// serveStatic writes the file as-is. /index.html is served, never redirected to /.
func (s *Server) serveStatic(c *gin.Context) {
	name, _ := staticName(c.Request.URL.Path)

	f, err := s.public.Open(name)
	if err != nil {
		c.String(http.StatusNotFound, "404 page not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		_ = c.Error(err)
		return
	}

	content, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(f)
		if err != nil {
			_ = c.Error(err)
			return
		}
		content = bytes.NewReader(data)
	}
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), content)
}
