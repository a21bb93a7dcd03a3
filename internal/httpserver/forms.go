package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/validation"
)

const multipartMemory = 8 << 20

// form reads admin multipart (or url-encoded) submissions and collects field
// errors instead of failing on the first bad value.
type form struct {
	r    *http.Request
	errs validation.Errors
}

func (h *handlers) parseForm(w http.ResponseWriter, r *http.Request) (*form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes)
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request too large. Maximum size: %dMB", h.deps.MaxUploadBytes>>20))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return nil, false
	}
	return &form{r: r, errs: validation.Errors{}}, true
}

func (f *form) has(key string) bool {
	_, ok := f.r.Form[key]
	return ok
}

func (f *form) str(key string) string {
	return strings.TrimSpace(f.r.FormValue(key))
}

func (f *form) int64Value(key string) int64 {
	v := f.str(key)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		f.errs.Add(key, "Must be a whole number")
		return 0
	}
	return n
}

func (f *form) intValue(key string) int {
	return int(f.int64Value(key))
}

func (f *form) optInt(key string) *int {
	if f.str(key) == "" {
		return nil
	}
	n := f.intValue(key)
	return &n
}

func (f *form) optInt64(key string) *int64 {
	if f.str(key) == "" {
		return nil
	}
	n := f.int64Value(key)
	return &n
}

func (f *form) optBool(key string) *bool {
	v := f.str(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		if v == "on" {
			b = true
		} else {
			f.errs.Add(key, "Must be true or false")
			return nil
		}
	}
	return &b
}

func (f *form) boolValue(key string) bool {
	if b := f.optBool(key); b != nil {
		return *b
	}
	return false
}

// json decodes a form field carrying a JSON document, e.g. the nearby list.
func (f *form) jsonValue(key string, dst any) {
	v := f.str(key)
	if v == "" {
		return
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		f.errs.Add(key, "Must be valid JSON")
	}
}

func (f *form) headers(key string) []*multipart.FileHeader {
	if f.r.MultipartForm == nil {
		return nil
	}
	var out []*multipart.FileHeader
	for _, fh := range f.r.MultipartForm.File[key] {
		if fh != nil && fh.Filename != "" {
			out = append(out, fh)
		}
	}
	return out
}

// file returns the single upload under key, or nil. A file that breaks the
// kind's rule is recorded as a field error.
func (f *form) file(key string, kind storage.Kind) storage.File {
	fhs := f.headers(key)
	if len(fhs) == 0 {
		return nil
	}
	file := storage.FromMultipart(fhs[0])
	if res := storage.Validate(file, kind); !res.Valid {
		f.errs.Add(key, res.Error)
		return nil
	}
	return file
}

// files returns every upload under key (and key[]). Rejected files are
// reported by name.
func (f *form) files(key string, kind storage.Kind) []storage.File {
	fhs := append(f.headers(key), f.headers(key+"[]")...)
	out := make([]storage.File, 0, len(fhs))
	for _, fh := range fhs {
		file := storage.FromMultipart(fh)
		if res := storage.Validate(file, kind); !res.Valid {
			f.errs.Add(key, fmt.Sprintf("%s: %s", fh.Filename, res.Error))
			continue
		}
		out = append(out, file)
	}
	return out
}

func (f *form) valid(w http.ResponseWriter) bool {
	if len(f.errs) > 0 {
		writeFieldErrors(w, "Validation failed", f.errs)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

// queryInt64 reads an optional positive integer query parameter.
func queryInt64(r *http.Request, key string, errs validation.Errors) int64 {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		errs.Add(key, "Must be a positive whole number")
		return 0
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}

func queryPage(r *http.Request, errs validation.Errors) database.Page {
	return database.Page{
		Limit:  int(queryInt64(r, "limit", errs)),
		Offset: int(queryInt64(r, "offset", errs)),
	}
}
