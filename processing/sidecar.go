package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrSidecarUnavailable is returned when a helper service cannot be reached.
var ErrSidecarUnavailable = errors.New("processing service unavailable")

// ConvertTarget describes an output format produced by the converter.
type ConvertTarget struct {
	Extension string
	MimeType  string
}

var convertTargets = map[string]ConvertTarget{
	"pdf":  {".pdf", MimePDF},
	"docx": {".docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	"xlsx": {".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	"pptx": {".pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	"jpg":  {".zip", MimeZip},
	"png":  {".zip", MimeZip},
	"html": {".html", "text/html"},
	"txt":  {".txt", "text/plain"},
}

// LookupConvertTarget reports whether target is a supported output format.
// Image targets come back as a ZIP with one image per page.
func LookupConvertTarget(target string) (ConvertTarget, bool) {
	t, ok := convertTargets[strings.ToLower(target)]
	return t, ok
}

type OCRResult struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Lines      []string `json:"lines,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// SidecarClient talks to the document conversion and OCR services.
type SidecarClient struct {
	convertURL string
	ocrURL     string
	client     *http.Client
	logger     *logrus.Entry
}

func NewSidecarClient(convertURL, ocrURL string, timeout time.Duration, logger *logrus.Logger) *SidecarClient {
	return &SidecarClient{
		convertURL: strings.TrimRight(convertURL, "/"),
		ocrURL:     strings.TrimRight(ocrURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.WithField("service", "sidecar"),
	}
}

// Convert sends one file to the converter and returns the converted bytes
// and the filename the converter suggested, if any.
func (c *SidecarClient) Convert(ctx context.Context, target string, file NamedFile) ([]byte, string, error) {
	if _, ok := LookupConvertTarget(target); !ok {
		return nil, "", fmt.Errorf("unsupported conversion target %q", target)
	}

	resp, err := c.postFile(ctx, fmt.Sprintf("%s/convert/%s", c.convertURL, strings.ToLower(target)), file, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", c.statusError("converter", resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading converted file: %w", err)
	}

	var name string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return data, name, nil
}

// OCR extracts text from a scanned document or image.
func (c *SidecarClient) OCR(ctx context.Context, file NamedFile, language string) (*OCRResult, error) {
	fields := map[string]string{}
	if language != "" {
		fields["language"] = language
	}

	resp, err := c.postFile(ctx, c.ocrURL+"/ocr", file, fields)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("ocr", resp)
	}

	var result OCRResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding ocr response: %w", err)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "ocr service could not read the document"
		}
		return nil, errors.New(msg)
	}
	return &result, nil
}

func (c *SidecarClient) postFile(ctx context.Context, url string, file NamedFile, fields map[string]string) (*http.Response, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("file", SanitizeFilename(file.Name))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("url", url).Warn("Sidecar request failed")
		return nil, fmt.Errorf("%w: %v", ErrSidecarUnavailable, err)
	}
	return resp, nil
}

func (c *SidecarClient) statusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	c.logger.WithFields(logrus.Fields{
		"sidecar":     service,
		"status_code": resp.StatusCode,
		"error_body":  string(body),
	}).Error("Sidecar returned error")

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned status %d", ErrSidecarUnavailable, service, resp.StatusCode)
	}
	return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, strings.TrimSpace(string(body)))
}
