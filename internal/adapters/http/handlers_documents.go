package httpadapter

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/bookshelf-aibot/internal/core/domain"
)

const (
	maxUploadFormBytes = 32 << 20
	maxUploadFiles     = 10
)

type uploadResponse struct {
	Documents []domain.AnalysisDocument `json:"documents"`
}

func (rt *Router) documentUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadFormBytes)
	if err := r.ParseMultipartForm(maxUploadFormBytes); err != nil {
		writeError(w, r, domain.NewValidationError("files", "请使用 multipart/form-data 上传文件"))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, r, domain.NewValidationError("files", "files 不能为空"))
		return
	}
	if len(headers) > maxUploadFiles {
		writeError(w, r, domain.NewValidationError("files", fmt.Sprintf("一次最多上传 %d 个文件", maxUploadFiles)))
		return
	}

	docs := make([]domain.AnalysisDocument, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeError(w, r, fmt.Errorf("open upload %s: %w", header.Filename, err))
			return
		}
		doc, err := rt.svc.Upload.Extract(r.Context(), header.Filename, file)
		_ = file.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rt.metrics != nil {
			rt.metrics.RecordUploadedDocument(serviceName, utf8.RuneCountInString(doc.Content))
		}
		docs = append(docs, *doc)
	}
	writeJSON(w, http.StatusOK, uploadResponse{Documents: docs})
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if rt.svc.Sessions == nil {
		writeError(w, r, domain.WrapError(domain.ErrNotFound, "get session", fmt.Errorf("session store is not configured")))
		return
	}
	session, err := rt.svc.Sessions.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
