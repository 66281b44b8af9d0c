package handler

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"net/http"
	"vet-transcribe/dto"
	"vet-transcribe/service"
)

type TranscriptionHandler struct {
	uploads service.UploadService
}

func NewTranscriptionHandler(uploads service.UploadService) *TranscriptionHandler {
	return &TranscriptionHandler{uploads: uploads}
}

func (h *TranscriptionHandler) Register(r gin.IRouter) {
	r.POST("/audio/upload", h.Upload)
	r.GET("/transcriptions/:id", h.GetJob)
	r.POST("/transcriptions/:id/retry", h.RetryJob)
}

func (h *TranscriptionHandler) Upload(c *gin.Context) {
	var form dto.UploadAudioForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "missing audio file"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unreadable audio file"})
		return
	}
	defer file.Close()

	req := service.UploadRequest{
		Filename:        fileHeader.Filename,
		ContentType:     fileHeader.Header.Get("Content-Type"),
		Size:            fileHeader.Size,
		Body:            file,
		DurationSeconds: form.DurationSeconds,
	}
	if req.ContentType == "" {
		req.ContentType = "application/octet-stream"
	}
	if form.PatientId != "" {
		patientId := uuid.MustParse(form.PatientId)
		req.PatientId = &patientId
	}

	res, err := h.uploads.Upload(c.Request.Context(), req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.UploadAudioResponse{
		AudioFileId:        res.AudioFile.ID,
		TranscriptionJobId: res.Job.ID,
		Message:            "Audio uploaded successfully. Transcription in progress.",
	})
}

func (h *TranscriptionHandler) GetJob(c *gin.Context) {
	id, ok := jobId(c)
	if !ok {
		return
	}

	job, err := h.uploads.GetJob(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTranscriptionJobResponse(job))
}

func (h *TranscriptionHandler) RetryJob(c *gin.Context) {
	id, ok := jobId(c)
	if !ok {
		return
	}

	job, err := h.uploads.RetryJob(c.Request.Context(), id)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RetryJobResponse{TranscriptionJobId: job.ID})
}

func jobId(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid transcription job id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *TranscriptionHandler) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrUnsupportedContentType), errors.Is(err, service.ErrEmptyUpload):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrJobNotRetryable):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, dto.ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}
