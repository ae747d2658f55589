package server

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/craftai-co-in/superflow/internal/metrics"
)

// handlePage applies the cross-domain router to a page request. Anonymous
// visitors are sent to the free origin's root; a routing decision wins over
// the page itself.
func (d *Deps) handlePage(page string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, view, err := d.currentUser(r)
		if err != nil {
			if page == "upgrade" {
				d.servePage(w, r, page)
				return
			}
			http.Redirect(w, r, withQuery(d.Router.FreeBaseURL+"/", "next", "/"+page), http.StatusFound)
			return
		}

		decision := d.Router.Route(view, d.Classifier.Classify(r.Host), d.now())
		if decision.Redirect() {
			metrics.RedirectsTotal.WithLabelValues(string(decision.Reason)).Inc()
			http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
			return
		}
		d.servePage(w, r, page)
	}
}

// servePage serves <static>/<page>.html, falling back to the SPA index, or a
// small JSON body when no static directory is configured.
func (d *Deps) servePage(w http.ResponseWriter, r *http.Request, page string) {
	if dir := d.Config.StaticDir; dir != "" {
		for _, name := range []string{page + ".html", "index.html"} {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				http.ServeFile(w, r, path)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"page": page})
}
