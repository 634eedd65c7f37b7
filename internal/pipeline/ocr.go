package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Attachment references a receipt image the user attached on the guild
// platform. The pipeline fetches the bytes itself from the URL.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Name        string `json:"name"`
	Size        int    `json:"size"`
}

// OCRRequest seeds the pipeline with a new receipt image plus submitter
// identity. This is the event that eventually produces the draft prompt.
type OCRRequest struct {
	Username    string       `json:"username"`
	UserID      string       `json:"user_id"`
	Content     string       `json:"content"`
	ChannelID   string       `json:"channel_id"`
	Timestamp   int64        `json:"timestamp"`
	Attachments []Attachment `json:"attachments"`
}

type ocrResponse struct {
	Reply string `json:"reply"`
}

// SubmitOCR forwards an attachment reference to the pipeline's OCR webhook
// and returns the optional immediate reply text.
func (g *Gateway) SubmitOCR(ctx context.Context, req OCRRequest) (string, error) {
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/ocrWebhook", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("pipeline returned %d", resp.StatusCode)
	}
	var parsed ocrResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", nil
	}
	return parsed.Reply, nil
}

// ImageUpload carries raw receipt bytes from the one-to-one platform, whose
// content URLs are auth-gated and cannot be fetched by the pipeline.
type ImageUpload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	UserID      string
	ReplyToken  string
	Platform    string
	// ImageURL points at the re-hosted copy, when an archive is configured.
	ImageURL string
}

// UploadImage posts the image as multipart form data to the OCR webhook.
func (g *Gateway) UploadImage(ctx context.Context, up ImageUpload) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", up.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, up.Reader); err != nil {
		return err
	}
	_ = w.WriteField("user_id", up.UserID)
	_ = w.WriteField("reply_token", up.ReplyToken)
	_ = w.WriteField("platform", up.Platform)
	if up.ImageURL != "" {
		_ = w.WriteField("image_url", up.ImageURL)
	}
	if err := w.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/ocrWebhook", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("pipeline returned %d", resp.StatusCode)
	}
	return nil
}
