package server

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"shortener/internal/telemetry"
	"shortener/internal/urls"
	"shortener/pkg/errors"
	"shortener/pkg/requestid"
)

const (
	maxBodyBytes     = 10 << 20
	defaultMaxURLLen = 2048
	isoMillis        = "2006-01-02T15:04:05.000Z07:00"
)

const (
	errValidation = "Validation Error"
	errInternal   = "Internal Server Error"
	errNotFound   = "Not Found"
	errBadRequest = "Bad Request"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

type shortenResponse struct {
	ShortURL    string `json:"shortUrl"`
	OriginalURL string `json:"originalUrl"`
	Code        string `json:"code"`
	CreatedAt   string `json:"createdAt"`
}

type statsResponse struct {
	Code        string `json:"code"`
	OriginalURL string `json:"originalUrl"`
	CreatedAt   string `json:"createdAt"`
	Clicks      int64  `json:"clicks"`
	ShortURL    string `json:"shortUrl"`
}

type deleteResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type urlKey struct{}

// validateShorten reads and checks the url field of a shorten request,
// passing the trimmed value on in the request context.
func (s *Server) validateShorten(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		value, problem := readURLField(r)
		if problem != "" {
			writeError(w, http.StatusBadRequest, errBadRequest, problem)
			return
		}

		target, msg := checkURL(value, s.maxURLLength())
		if msg != "" {
			writeError(w, http.StatusBadRequest, errValidation, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), urlKey{}, target)))
	})
}

// validateCode rejects malformed code path parameters
func (s *Server) validateCode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		switch {
		case code == "":
			writeError(w, http.StatusBadRequest, errValidation, "Short code is required")
		case !s.deps.ValidCode(code):
			writeError(w, http.StatusBadRequest, errValidation, "Invalid short code format")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) shorten(w http.ResponseWriter, r *http.Request) {
	target, _ := r.Context().Value(urlKey{}).(string)

	code, rec, err := s.deps.URLs.Create(r.Context(), target)
	if err != nil {
		s.logError(r, "Error creating shortened URL", err)
		writeError(w, http.StatusInternalServerError, errInternal, "Failed to create shortened URL")
		return
	}

	writeJSON(w, http.StatusCreated, shortenResponse{
		ShortURL:    s.shortURL(code),
		OriginalURL: rec.OriginalURL,
		Code:        code,
		CreatedAt:   formatTime(rec.CreatedAt),
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, err := s.deps.URLs.Get(r.Context(), code)
	switch {
	case errors.Is(err, urls.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound, "Short URL not found or has expired")
		return
	case err != nil:
		s.logError(r, "Error fetching URL stats", err)
		writeError(w, http.StatusInternalServerError, errInternal, "Failed to fetch URL statistics")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Code:        code,
		OriginalURL: rec.OriginalURL,
		CreatedAt:   formatTime(rec.CreatedAt),
		Clicks:      rec.Clicks,
		ShortURL:    s.shortURL(code),
	})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	err := s.deps.URLs.Delete(r.Context(), code)
	switch {
	case errors.Is(err, urls.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound, "Short URL not found")
		return
	case err != nil:
		s.logError(r, "Error deleting URL", err)
		writeError(w, http.StatusInternalServerError, errInternal, "Failed to delete short URL")
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{
		Message: "Short URL deleted successfully",
		Code:    code,
	})
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rec, err := s.deps.URLs.Resolve(r.Context(), code)
	switch {
	case errors.Is(err, urls.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound, "Short URL not found or has expired")
		return
	case urls.IsCorrupt(err):
		writeError(w, http.StatusInternalServerError, errInternal, "Invalid URL data format")
		return
	case err != nil:
		s.logError(r, "Error redirecting URL", err)
		writeError(w, http.StatusInternalServerError, errInternal, "Failed to redirect to original URL")
		return
	}

	http.Redirect(w, r, rec.OriginalURL, http.StatusMovedPermanently)
}

func (s *Server) shortURL(code string) string {
	base := s.config.Server.BaseURL
	if base == "" {
		base = "http://localhost:" + strconv.Itoa(s.config.Server.Port)
	}
	return strings.TrimRight(base, "/") + "/" + code
}

func (s *Server) maxURLLength() int {
	if s.config.URLs.MaxLength > 0 {
		return s.config.URLs.MaxLength
	}
	return defaultMaxURLLen
}

func (s *Server) logError(r *http.Request, msg string, err error) {
	telemetry.RecordError(r.Context(), err)
	s.logger.Error(msg,
		"path", r.URL.Path,
		"request_id", requestid.FromContext(r.Context()),
		"error", err,
	)
}

// readURLField returns the sanitized url field of a JSON or form body, or a
// message when the body cannot be read. A missing field yields nil.
func readURLField(r *http.Request) (any, string) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, "Invalid form body"
		}
		values, ok := r.PostForm["url"]
		if !ok || len(values) == 0 {
			return nil, ""
		}
		return sanitizeString(values[0]), ""
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "Request body too large"
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ""
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, "Invalid JSON body"
	}
	fields, ok := sanitizeValue(body).(map[string]any)
	if !ok {
		return nil, ""
	}
	return fields["url"], ""
}

// checkURL validates a url field, returning the trimmed URL or a message
// describing why it was rejected.
func checkURL(value any, maxLen int) (string, string) {
	if isEmpty(value) {
		return "", "URL is required"
	}
	raw, ok := value.(string)
	if !ok {
		return "", "URL must be a string"
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "URL cannot be empty"
	}
	if !isValidURL(trimmed) {
		return "", "Invalid URL format. URL must start with http:// or https://"
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return "", "URL is too long (maximum " + strconv.Itoa(maxLen) + " characters)"
	}
	return trimmed, ""
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	default:
		return false
	}
}

func isValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorResponse{Error: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
