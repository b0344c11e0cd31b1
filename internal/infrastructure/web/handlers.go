package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/basel-ax/tunerelay/internal/domain"
	"github.com/basel-ax/tunerelay/internal/infrastructure/logging"
)

const (
	photosField     = "photos"
	nameField       = "name"
	multipartMemory = 32 << 20
	maxGenerateBody = 1 << 20
)

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			writeError(w, domain.Validationf("multipart form with %q files is required", photosField), log)
			return
		}
		writeError(w, domain.Validationf("malformed multipart form: %v", err), log)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[photosField]
	if len(headers) > domain.MaxTrainingImages {
		writeError(w, domain.Validationf("at most %d photos are allowed, got %d", domain.MaxTrainingImages, len(headers)), log)
		return
	}

	images := make([]domain.TrainingImage, 0, len(headers))
	for _, fh := range headers {
		img, err := readImage(fh)
		if err != nil {
			writeError(w, domain.Validationf("could not read %q: %v", fh.Filename, err), log)
			return
		}
		images = append(images, img)
	}

	// the provider call outlives a dropped client connection
	ctx := context.WithoutCancel(r.Context())
	tuneID, err := s.relay.Train(ctx, domain.TrainingRequest{
		Title:  r.FormValue(nameField),
		Images: images,
	})
	if err != nil {
		writeError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, trainResponse{Success: true, TuneID: tuneID})
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	TuneID flexID `json:"tune_id"`
	Width  int    `json:"w"`
	Height int    `json:"h"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)

	var req generateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxGenerateBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid JSON body: %v", err), log)
		return
	}

	// the poll loop runs to one of its own terminations even if the client leaves
	ctx := context.WithoutCancel(r.Context())
	image, err := s.relay.Generate(ctx, domain.GenerationRequest{
		Prompt: req.Prompt,
		TuneID: string(req.TuneID),
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		writeError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{Success: true, Image: image})
}

func readImage(fh *multipart.FileHeader) (domain.TrainingImage, error) {
	f, err := fh.Open()
	if err != nil {
		return domain.TrainingImage{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return domain.TrainingImage{}, err
	}

	return domain.TrainingImage{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// flexID accepts a tune id sent either as a JSON string or a number.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("tune_id must be a string or a number")
	}
	*id = flexID(n.String())
	return nil
}
