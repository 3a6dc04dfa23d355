package form

import (
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"github.com/tutu-network/painter/internal/painter"
)

//go:embed templates/index.html
var templates embed.FS

// uploadJPEGQuality is used when re-encoding the upload before sending it.
const uploadJPEGQuality = 95

const maxUploadBytes = 32 << 20

// Server renders the upload form and forwards submissions to the backend.
type Server struct {
	client *Client
	styles []string
	tmpl   *template.Template
	logger *zap.Logger
}

type page struct {
	Nonce    string
	Styles   []string
	Selected string
	Error    string
	Result   template.URL // data URI of the JPEG
}

// NewServer fetches the style list from the backend once and prepares the
// page. logger may be nil.
func NewServer(ctx context.Context, client *Client, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.ParseFS(templates, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	styles, err := client.ListStyles(ctx)
	if err != nil {
		return nil, err
	}
	if len(styles) == 0 {
		return nil, errors.New("backend serves no styles")
	}
	logger.Info("form ready", zap.String("backend", client.BaseURL()), zap.Strings("styles", styles))
	return &Server{client: client, styles: styles, tmpl: tmpl, logger: logger}, nil
}

// Styles returns the style list fetched at startup.
func (s *Server) Styles() []string { return slices.Clone(s.styles) }

// Handler returns the form router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(DefaultTimeout + 10*time.Second))
	r.Use(secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "same-origin",
		ContentSecurityPolicy: "default-src 'self'; img-src 'self' data:; style-src $NONCE",
	}).Handler)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleSubmit)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, page{Selected: s.styles[0]})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	p := page{Selected: s.styles[0]}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			p.Error = fmt.Sprintf("The image is too large (limit %d MB).", maxUploadBytes>>20)
			s.render(w, r, http.StatusRequestEntityTooLarge, p)
			return
		}
	}
	if style := r.FormValue("style"); slices.Contains(s.styles, style) {
		p.Selected = style
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		p.Error = "Please choose an image."
		s.render(w, r, http.StatusBadRequest, p)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		p.Error = "Could not read the upload."
		s.render(w, r, http.StatusBadRequest, p)
		return
	}

	img, _, err := painter.Decode(raw)
	if err != nil {
		p.Error = "The file is not a supported image."
		s.render(w, r, http.StatusBadRequest, p)
		return
	}
	upload, err := painter.EncodeJPEG(img, uploadJPEGQuality)
	if err != nil {
		p.Error = err.Error()
		s.render(w, r, http.StatusInternalServerError, p)
		return
	}

	out, err := s.client.Transform(r.Context(), p.Selected, header.Filename, upload)
	if err != nil {
		s.logger.Warn("transform request failed", zap.String("style", p.Selected), zap.Error(err))
		p.Error = "Style transfer failed: " + err.Error()
		s.render(w, r, http.StatusBadGateway, p)
		return
	}

	p.Result = template.URL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(out))
	s.render(w, r, http.StatusOK, p)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, p page) {
	p.Nonce = secure.CSPNonce(r.Context())
	p.Styles = s.styles

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.Execute(w, p); err != nil {
		s.logger.Error("render form", zap.Error(err))
	}
}
