package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/sportshop/internal/apperr"
)

const (
	flashCookie  = "flash"
	maxBodyBytes = 1 << 20
)

var ErrBadRequest = apperr.Validation("invalid request body")

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// respond answers a successful mutation. Browser form posts are redirected
// back with a flash message instead.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, status int, message string, data any) {
	if isFormPost(r) {
		redirectWithFlash(w, r, "success", message)
		return
	}
	writeEnvelope(w, status, envelope{Success: true, Message: message, Data: data})
}

// fail maps err onto a status code. Internal errors are logged and hidden.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	message := apperr.PublicMessage(err)
	if isFormPost(r) {
		redirectWithFlash(w, r, "error", message)
		return
	}
	writeEnvelope(w, status, envelope{Success: false, Message: message})
}

func isFormPost(r *http.Request) bool {
	if r.Method == http.MethodGet {
		return false
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/x-www-form-urlencoded" && ct != "multipart/form-data" {
		return false
	}
	return !strings.Contains(r.Header.Get("Accept"), "application/json")
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(kind + ":" + message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	target := "/"
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" && ref.Host == r.Host {
		target = ref.RequestURI()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// bind decodes a JSON body or form fields into dst. Form values are mapped
// by their json field names.
func bind(r *http.Request, dst any) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		fields := make(map[string]any, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) == 1 {
				fields[k] = v[0]
			} else {
				fields[k] = v
			}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return nil
	default:
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return nil
	}
}

// flexInt accepts a JSON number or a numeric string, so form posts and JSON
// clients bind to the same request types.
type flexInt struct {
	Value int
	Set   bool
}

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%q is not a whole number", s)
	}
	n.Value, n.Set = v, true
	return nil
}

func (n flexInt) Or(def int) int {
	if !n.Set {
		return def
	}
	return n.Value
}

// flexBool accepts JSON booleans and the usual checkbox spellings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(string(data), `"`)) {
	case "true", "1", "on", "yes":
		*b = true
	case "false", "0", "off", "no", "", "null":
		*b = false
	default:
		return fmt.Errorf("%s is not a boolean", data)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a whole number", ErrBadRequest, key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// queryDate parses a YYYY-MM-DD parameter in loc.
func queryDate(r *http.Request, key string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", ErrBadRequest, key)
	}
	return t, nil
}
