package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"loanflow-server/internal/application/agents"
	"loanflow-server/internal/application/sanction"
	"loanflow-server/internal/config"
	"loanflow-server/internal/domain/document"
	"loanflow-server/internal/interfaces/httpserver/responses"
)

// DocumentHandler exposes document upload and sanction letter download.
type DocumentHandler struct {
	cfg     *config.Config
	docs    *document.Service
	master  *agents.MasterAgent
	letters *sanction.Generator
	log     zerolog.Logger
}

func NewDocumentHandler(cfg *config.Config, docs *document.Service, master *agents.MasterAgent, letters *sanction.Generator, log zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{
		cfg:     cfg,
		docs:    docs,
		master:  master,
		letters: letters,
		log:     log.With().Str("component", "document-handler").Logger(),
	}
}

// Upload accepts a multipart document, stores it and feeds salary
// slips back into the underwriting flow.
func (h *DocumentHandler) Upload(c *gin.Context) {
	sessionID := strings.TrimSpace(c.PostForm("sessionId"))
	if sessionID == "" {
		responses.Fail(c, http.StatusBadRequest, responses.CodeMissingSessionID, "sessionId form field is required")
		return
	}

	docType := strings.TrimSpace(c.PostForm("documentType"))
	if docType == "" {
		docType = document.TypeSalarySlip
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, responses.CodeValidationError, "file form field is required")
		return
	}
	if fileHeader.Size > h.cfg.MaxUploadBytes {
		responses.Fail(c, http.StatusRequestEntityTooLarge, responses.CodeValidationError, "file exceeds the upload size limit")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, responses.CodeValidationError, "unable to read uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, responses.CodeValidationError, "unable to read uploaded file")
		return
	}

	doc, err := h.docs.StoreUpload(c.Request.Context(), sessionID, docType, fileHeader.Filename, data)
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, responses.CodeValidationError, err.Error())
		return
	}

	var extraction *document.SalaryExtraction
	if docType == document.TypeSalarySlip {
		extraction = h.docs.ExtractSalary(doc)
	}

	resp, err := h.master.ProcessDocumentUpload(c.Request.Context(), sessionID, doc, extraction)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			responses.Fail(c, http.StatusNotFound, responses.CodeSessionNotFound, "session not found: "+sessionID)
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("document processing failed")
		responses.Fail(c, http.StatusInternalServerError, responses.CodeInternalError, "failed to process document")
		return
	}

	conv, ok := h.master.SessionContext(sessionID)
	if !ok {
		responses.Fail(c, http.StatusNotFound, responses.CodeSessionNotFound, "session not found: "+sessionID)
		return
	}

	envelope := responses.BuildChatResponse(resp, conv)
	if envelope.Metadata == nil {
		envelope.Metadata = map[string]any{}
	}
	envelope.Metadata["document"] = doc
	c.JSON(http.StatusOK, envelope)
}

// DownloadSanctionLetter streams a generated sanction letter.
func (h *DocumentHandler) DownloadSanctionLetter(c *gin.Context) {
	filename := c.Param("filename")
	path, err := h.letters.Resolve(filename)
	if err != nil {
		responses.Fail(c, http.StatusNotFound, responses.CodeInvalidParameter, err.Error())
		return
	}

	c.FileAttachment(path, filename)
}
