package handlers

import (
	"net/http"

	"github.com/AnshRaj112/salvioris-chat/internal/models"
	"github.com/AnshRaj112/salvioris-chat/internal/services"
)

type UploadResponse struct {
	Success    bool                      `json:"success"`
	Message    string                    `json:"message"`
	Attachment *models.MessageAttachment `json:"attachment,omitempty"`
}

// UploadAttachment stores a file and returns the attachment to reference in a send.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.Attachments == nil {
		writeError(w, http.StatusServiceUnavailable, "file uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAttachmentSize+(1<<20))
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form: "+err.Error())
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	file.Close()

	att, err := h.Attachments.UploadFromHeader(r.Context(), fileHeader)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		Success:    true,
		Message:    "File uploaded successfully",
		Attachment: att,
	})
}
