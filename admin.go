/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"

	"github.com/Seednode/memorybox/internal/images"
)

// multipart overhead allowed on top of --max-upload-size
const formOverhead = 64 * 1024

type imageAdmin interface {
	Load(ctx context.Context) []string
	Add(ctx context.Context, locator string) images.Result
	Remove(ctx context.Context, locator string) images.Result
	FrontImage(ctx context.Context) string
	SetFrontImage(ctx context.Context, locator string) images.Result
}

type imagesResponse struct {
	Images  []string `json:"images"`
	Warning string   `json:"warning,omitempty"`
}

type frontImageResponse struct {
	FrontImage string `json:"front_image"`
	Warning    string `json:"warning,omitempty"`
}

// errUpload carries the status code for a rejected upload.
type errUpload struct {
	status  int
	message string
}

func (e *errUpload) Error() string {
	return e.message
}

func requireAdmin(cfg *Config, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if !cfg.adminEnabled() {
			writeError(cfg, w, http.StatusForbidden, "The admin panel is disabled.")
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(cfg.adminUser)) != 1 ||
			bcrypt.CompareHashAndPassword([]byte(cfg.adminPasswordHash), []byte(pass)) != nil {
			if ok {
				logf(cfg, "ADMIN: Rejected credentials for %q from %s", user, realIP(r))
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="memorybox admin", charset="UTF-8"`)
			writeError(cfg, w, http.StatusUnauthorized, "Sign in to manage images.")
			return
		}

		next(w, r, p)
	}
}

func serveImageList(cfg *Config, store imageAdmin, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := writeJSON(cfg, w, http.StatusOK, imagesResponse{Images: store.Load(r.Context())}); err != nil {
			errs <- err
		}
	}
}

func serveAddImage(cfg *Config, store imageAdmin, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		locator, err := readLocator(cfg, w, r)
		if err != nil {
			var ue *errUpload
			if errors.As(err, &ue) {
				writeError(cfg, w, ue.status, ue.message)
				return
			}
			writeError(cfg, w, http.StatusBadRequest, "The upload could not be read.")
			return
		}

		res := store.Add(r.Context(), locator)
		logf(cfg, "ADMIN: Added %s from %s (%s)", describeLocator(locator), realIP(r), res.Fallback)

		if err := writeJSON(cfg, w, http.StatusOK, imagesResponse{
			Images:  res.Images,
			Warning: res.Fallback.Warning(),
		}); err != nil {
			errs <- err
		}
	}
}

func serveRemoveImage(cfg *Config, store imageAdmin, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Locator string `json:"locator"`
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.maxUploadSize*2)
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Locator == "" {
			writeError(cfg, w, http.StatusBadRequest, "Choose an image to remove.")
			return
		}

		res := store.Remove(r.Context(), body.Locator)
		logf(cfg, "ADMIN: Removed %s from %s (%s)", describeLocator(body.Locator), realIP(r), res.Fallback)

		if err := writeJSON(cfg, w, http.StatusOK, imagesResponse{
			Images:  res.Images,
			Warning: res.Fallback.Warning(),
		}); err != nil {
			errs <- err
		}
	}
}

func serveFrontImage(cfg *Config, store imageAdmin, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		if err := writeJSON(cfg, w, http.StatusOK, frontImageResponse{FrontImage: store.FrontImage(r.Context())}); err != nil {
			errs <- err
		}
	}
}

func serveSetFrontImage(cfg *Config, store imageAdmin, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		locator, err := readLocator(cfg, w, r)
		if err != nil {
			var ue *errUpload
			if errors.As(err, &ue) {
				writeError(cfg, w, ue.status, ue.message)
				return
			}
			writeError(cfg, w, http.StatusBadRequest, "The upload could not be read.")
			return
		}

		res := store.SetFrontImage(r.Context(), locator)
		logf(cfg, "ADMIN: Card back set to %s from %s (%s)", describeLocator(res.Images[0]), realIP(r), res.Fallback)

		if err := writeJSON(cfg, w, http.StatusOK, frontImageResponse{
			FrontImage: res.Images[0],
			Warning:    res.Fallback.Warning(),
		}); err != nil {
			errs <- err
		}
	}
}

// readLocator turns a form submission into an image locator: an uploaded
// "image" file becomes an inline data URL, otherwise the "url" field is used.
func readLocator(cfg *Config, w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.maxUploadSize+formOverhead)

	if err := r.ParseMultipartForm(cfg.maxUploadSize + formOverhead); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return "", &errUpload{http.StatusRequestEntityTooLarge, "The image is larger than " + humanReadableSize(cfg.maxUploadSize) + "."}
		}
		return "", err
	}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()

		if header.Size > cfg.maxUploadSize {
			return "", &errUpload{http.StatusRequestEntityTooLarge, "The image is larger than " + humanReadableSize(cfg.maxUploadSize) + "."}
		}

		data, err := io.ReadAll(io.LimitReader(file, cfg.maxUploadSize+1))
		if err != nil {
			return "", err
		}
		if int64(len(data)) > cfg.maxUploadSize {
			return "", &errUpload{http.StatusRequestEntityTooLarge, "The image is larger than " + humanReadableSize(cfg.maxUploadSize) + "."}
		}

		mime := http.DetectContentType(data)
		if !strings.HasPrefix(mime, "image/") {
			return "", &errUpload{http.StatusBadRequest, "Please select an image file."}
		}

		return images.EncodeDataURL(mime, data), nil

	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		raw := strings.TrimSpace(r.FormValue("url"))
		if raw == "" {
			return "", &errUpload{http.StatusBadRequest, "Choose an image file or enter an image URL."}
		}
		if !validImageURL(raw) {
			return "", &errUpload{http.StatusBadRequest, "Image URLs must be https links or site paths."}
		}
		return raw, nil

	default:
		return "", err
	}
}

func validImageURL(raw string) bool {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return true
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host != ""
}

func registerAdmin(cfg *Config, store imageAdmin, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/admin", requireAdmin(cfg, servePage(cfg, "assets/memory/admin.html", errs)))

	mux.GET(cfg.prefix+"/api/images", requireAdmin(cfg, serveImageList(cfg, store, errs)))
	mux.POST(cfg.prefix+"/api/images", requireAdmin(cfg, serveAddImage(cfg, store, errs)))
	mux.DELETE(cfg.prefix+"/api/images", requireAdmin(cfg, serveRemoveImage(cfg, store, errs)))

	mux.GET(cfg.prefix+"/api/front-image", serveFrontImage(cfg, store, errs))
	mux.PUT(cfg.prefix+"/api/front-image", requireAdmin(cfg, serveSetFrontImage(cfg, store, errs)))
}
