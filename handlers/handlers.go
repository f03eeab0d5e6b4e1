// Package handlers holds the thin HTTP layer: decode, call a service, map
// domain errors to responses.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/upb/docchat/middleware"
	"github.com/upb/docchat/utils"
)

// maxJSONBodyBytes caps non-upload request bodies
const maxJSONBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// decodeRequest fills dst from a JSON body or, for form submissions, from
// the posted form fields. Form values are strings.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxJSONBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
		fields := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dst)
	default:
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			if errors.Is(err, io.EOF) {
				return errEmptyBody
			}
			return err
		}
		return nil
	}
}

// currentUser returns the authenticated user id, writing 401 when absent
func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID := middleware.GetUserIDFromContext(r.Context())
	if userID == uuid.Nil {
		_ = utils.WriteError(w, r, http.StatusUnauthorized, "Authentication required", nil)
		return uuid.Nil, false
	}
	return userID, true
}

// pathUUID parses a chi URL parameter
func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	return utils.ParseUUID(chi.URLParam(r, param), param)
}

// pagination reads limit and offset query parameters; zero means default
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, &utils.ValidationError{
				Message: "invalid limit",
				Fields:  map[string]string{"limit": "limit must be a non-negative integer"},
			}
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, &utils.ValidationError{
				Message: "invalid offset",
				Fields:  map[string]string{"offset": "offset must be a non-negative integer"},
			}
		}
	}
	return limit, offset, nil
}
