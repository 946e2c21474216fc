package api

import (
	"bufio"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxImageBytes = 10 << 20

// imageExtensions are the upload content types that are accepted, with the
// extension the stored key gets. SVG is excluded since it can carry script.
var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type presignImageRequest struct {
	ContentType string `json:"contentType"`
}

type imageResponse struct {
	Key    string           `json:"key"`
	URL    string           `json:"url"`
	Upload *presignedUpload `json:"upload,omitempty"`
}

func newImageKey(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", invalid("invalid content type %q", contentType)
	}

	ext, ok := imageExtensions[mediaType]
	if !ok {
		return "", invalid("unsupported image type %q", mediaType)
	}

	return imageKeyPrefix + uuid.NewString() + ext, nil
}

func imageURL(key string) string {
	return "/api/v1/" + key
}

// handleUploadImage stores a new post image. With S3 the body is a JSON
// {contentType} and the response carries a presigned PUT request for the
// client to upload to; with local storage the body is the image itself.
func (s *server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.presigner != nil:
		s.presignImageUpload(w, r)
	case s.images != nil:
		s.storeImageUpload(w, r)
	default:
		s.fail(w, r, fmt.Errorf("image storage %w", errUnavailable))
	}
}

func (s *server) presignImageUpload(w http.ResponseWriter, r *http.Request) {
	var req presignImageRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, err)

		return
	}

	key, err := newImageKey(req.ContentType)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	upload, err := s.presigner.PresignPut(r.Context(), key, req.ContentType)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeData(w, http.StatusCreated, imageResponse{
		Key:    key,
		URL:    imageURL(key),
		Upload: upload,
	}, "")
}

func (s *server) storeImageUpload(w http.ResponseWriter, r *http.Request) {
	body := bufio.NewReader(http.MaxBytesReader(w, r.Body, maxImageBytes))

	// Sniff the real type rather than trusting the request header.
	head, _ := body.Peek(512)
	contentType := http.DetectContentType(head)

	key, err := newImageKey(contentType)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	if err := s.images.Save(key, body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = invalid("image exceeds %d bytes", maxImageBytes)
		}

		s.fail(w, r, err)

		return
	}

	s.log.WithField("key", key).Info("Image uploaded")

	writeData(w, http.StatusCreated, imageResponse{Key: key, URL: imageURL(key)}, "")
}

// handleGetImage serves a local image or redirects to a presigned S3 URL.
func (s *server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	key := imageKeyForPath(chi.URLParam(r, "*"))

	switch {
	case s.images != nil:
		if err := s.images.ServeFile(w, r, key); err != nil {
			s.fail(w, r, err)
		}
	case s.presigner != nil:
		url, err := s.presigner.PresignGet(r.Context(), key)
		if err != nil {
			s.fail(w, r, err)

			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	default:
		s.fail(w, r, fmt.Errorf("image storage %w", errUnavailable))
	}
}
