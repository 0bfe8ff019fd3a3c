package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/sjawhar/voice-dataset/internal/audio"
)

type Deps struct {
	Control Controller
	Store   SessionStore
	Devices audio.DeviceLister
	Hub     *Hub

	// Static serves the browser UI when set.
	Static fs.FS

	Warnings func() []string
	Logger   *zap.SugaredLogger
}

func Handler(deps Deps) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Logger)
	}

	mux := http.NewServeMux()

	registerWSRoute(mux, deps.Hub, deps.Logger)
	registerAPIRoutes(mux, deps)

	if deps.Static != nil {
		fileServer := http.FileServer(http.FS(deps.Static))
		mux.HandleFunc("/", serveSPA(fileServer))
	}

	return mux, nil
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			http.NotFound(w, r)
			return
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/index.html"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
