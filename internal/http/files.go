package httpx

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/splax/skillsync/internal/service/files"
)

const uploadField = "file"

func (r *Router) handleTeamFiles(w http.ResponseWriter, req *http.Request) {
	parts := pathParts(req.URL.Path, "/team-files/")
	switch len(parts) {
	case 1:
		if req.Method == http.MethodPost {
			r.serveLimited("/team-files/{id}", rateUpload, parts[0], w, req, func(w http.ResponseWriter, req *http.Request) {
				r.handleUpload(w, req, parts[0])
			})
			return
		}
		r.serveLimited("/team-files/{id}", rateRead, parts[0], w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleListFiles(w, req, parts[0])
		})
	case 2:
		r.serveLimited("/team-files/{id}/{file_id}", rateWrite, parts[0], w, req, func(w http.ResponseWriter, req *http.Request) {
			r.handleFile(w, req, parts[0], parts[1])
		})
	default:
		r.notFound(w)
	}
}

func (r *Router) handleListFiles(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	records, err := r.svc.Files.List(req.Context(), actor, teamID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleUpload streams the first "file" part of a multipart body to storage.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request, teamID string) {
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	reader, err := req.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form body required")
		return
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "missing file field")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "malformed multipart body")
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		record, err := r.svc.Files.Upload(req.Context(), actor, teamID, files.UploadInput{
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
		return
	}
}

func (r *Router) handleFile(w http.ResponseWriter, req *http.Request, teamID, fileID string) {
	actor, ok := r.mustActor(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		record, body, err := r.svc.Files.Open(req.Context(), actor, teamID, fileID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		defer body.Close()
		contentType := record.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.FormatInt(record.SizeBytes, 10))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": record.Filename}))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil {
			r.logger.Warn("file download interrupted", "team_id", teamID, "file_id", fileID, "error", err)
		}
	case http.MethodDelete:
		if err := r.svc.Files.Delete(req.Context(), actor, teamID, fileID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		r.methodNotAllowed(w)
	}
}
