package web

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/csvsource"
	"github.com/JonMunkholm/uploaduser/internal/logging"
	"github.com/JonMunkholm/uploaduser/internal/tracker"
)

// defaultFieldPrefix marks form fields that carry per-run column defaults,
// e.g. default_city=Berlin.
const defaultFieldPrefix = "default_"

// UploadResponse is the body of POST /api/uploads. Error is set when the run
// aborted part way; the rows processed until then are still reported.
type UploadResponse struct {
	tracker.RunReport
	Error *ErrorResponse `json:"error,omitempty"`
}

// uploadForm is the parsed multipart body shared by uploads and previews.
type uploadForm struct {
	file   multipart.File
	name   string
	policy core.PolicyOptions
	csv    csvsource.Options
}

// readUploadForm parses the multipart body. On failure it has already
// written the error response. On success the caller closes form.file and
// removes the form's temporary files.
func (s *Server) readUploadForm(w http.ResponseWriter, r *http.Request) (*uploadForm, bool) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, errFileTooLarge, http.StatusRequestEntityTooLarge)
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return nil, false
	}

	opts, err := policyFromForm(r)
	if err != nil {
		file.Close()
		r.MultipartForm.RemoveAll()
		s.respondError(w, r, fmt.Errorf("invalid policy: %w", err), http.StatusBadRequest)
		return nil, false
	}

	return &uploadForm{
		file:   file,
		name:   header.Filename,
		policy: opts,
		csv: csvsource.Options{
			Delimiter: formValue(r, "delimiter", s.cfg.Upload.Delimiter),
			Encoding:  formValue(r, "encoding", s.cfg.Upload.Encoding),
			Size:      header.Size,
		},
	}, true
}

// handleUpload runs a multipart CSV upload and returns the full report.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readUploadForm(w, r)
	if !ok {
		return
	}
	defer form.file.Close()
	defer r.MultipartForm.RemoveAll()

	ctx := WithRequestMetadata(r.Context(), r)
	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}

	log := logging.WithFields(ctx, "file", form.name, "size", form.csv.Size, "mode", form.policy.Mode)
	log.Info("upload received")

	report := tracker.NewReport(s.cfg.Upload.ReportRowLimit)
	summary, err := s.site.Upload(ctx, form.name, form.file, form.csv, form.policy, report)
	if err != nil && summary.RunID == "" {
		s.respondError(w, r, err, runErrorStatus(err))
		return
	}

	resp := UploadResponse{RunReport: report.Result()}
	status := http.StatusOK
	if err != nil {
		msg := core.MapError(err)
		status = runErrorStatus(err)
		resp.Error = &ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code}
		log.Warn("upload run aborted", "run_id", summary.RunID, "error", err)
	}
	writeJSON(w, status, resp)
}

// handlePreview prepares an upload without writing and returns the plans.
// It takes the same form as handleUpload plus an optional rows limit.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	form, ok := s.readUploadForm(w, r)
	if !ok {
		return
	}
	defer form.file.Close()
	defer r.MultipartForm.RemoveAll()

	maxRows, _ := strconv.Atoi(r.FormValue("rows"))
	preview, err := s.site.Preview(r.Context(), form.file, form.csv, form.policy, maxRows)
	if err != nil {
		s.respondError(w, r, err, runErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleUploadQueueStatus returns the current state of the run gate.
// Used for monitoring and to check if the system can accept another upload.
func (s *Server) handleUploadQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.site.Limiter.Status())
}

// policyFromForm reads the run policy from form fields named like the CLI
// flags. Absent fields keep their defaults.
func policyFromForm(r *http.Request) (core.PolicyOptions, error) {
	opts := core.DefaultPolicyOptions()
	opts.Mode = formValue(r, "mode", opts.Mode)
	opts.UpdateMode = formValue(r, "updatemode", opts.UpdateMode)
	opts.PasswordMode = formValue(r, "passwordmode", opts.PasswordMode)
	opts.ForcePasswordChange = formValue(r, "forcepasswordchange", opts.ForcePasswordChange)

	flags := []struct {
		name string
		dst  *bool
	}{
		{"allowrenames", &opts.AllowRenames},
		{"allowdeletes", &opts.AllowDeletes},
		{"allowsuspends", &opts.AllowSuspends},
		{"standardise", &opts.Standardise},
		{"updatepassword", &opts.UpdatePassword},
		{"noemailduplicates", &opts.NoEmailDuplicates},
	}
	var errs []error
	for _, f := range flags {
		v := strings.TrimSpace(r.FormValue(f.name))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q", f.name, v))
			continue
		}
		*f.dst = b
	}

	for key, values := range r.MultipartForm.Value {
		field, ok := strings.CutPrefix(key, defaultFieldPrefix)
		if !ok || field == "" || len(values) == 0 {
			continue
		}
		if opts.Defaults == nil {
			opts.Defaults = make(map[string]string)
		}
		opts.Defaults[strings.ToLower(field)] = values[0]
	}

	return opts, errors.Join(errs...)
}

func formValue(r *http.Request, name, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(name)); v != "" {
		return v
	}
	return fallback
}
