package api

import (
	"embed"
	"net/http"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

// Embedded service-description page. Unlike the Angular SPA this was
// mounted from, chaingate has no frontend build step: dist/ holds a single
// handwritten index.html pointing operators at /health and /status.
//
//go:embed dist/*
var embeddedUI embed.FS

func mountStatic(r *gin.Engine) {
	fs, err := static.EmbedFolder(embeddedUI, "dist")
	if err != nil {
		panic("api: failed to load embedded static assets: " + err.Error())
	}
	r.Use(static.Serve("/ui", fs))

	r.GET("/", func(c *gin.Context) {
		index, err := fs.Open("index.html")
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		defer index.Close()
		stat, _ := index.Stat()
		http.ServeContent(c.Writer, c.Request, "index.html", stat.ModTime(), index)
	})
}
