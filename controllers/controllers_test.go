package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfdesk/config"
	"pdfdesk/models"
	"pdfdesk/payment"
	"pdfdesk/processing"
	"pdfdesk/services"
)

const webhookSecret = "whsec_controller_test"

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func decode(t *testing.T, w *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func webhookRouter() *gin.Engine {
	gateway := payment.NewStripeGateway(config.StripeConfig{WebhookSecret: webhookSecret})
	// signature handling and ignored events never reach the repositories
	svc := services.NewPaymentService(nil, nil, nil, nil, nil, gateway, nil, quietLogger())

	router := gin.New()
	router.POST("/payments/webhook", NewPaymentController(svc).Webhook)
	return router
}

func stripeSignature(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhookRejectsForgedSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

	w := httptest.NewRecorder()
	webhookRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestWebhookAcknowledgesIgnoredEvents(t *testing.T) {
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", stripeSignature(payload))

	w := httptest.NewRecorder()
	webhookRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]interface{}{"received": true}, resp.Data)
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	healthy := NewSystemController("PDF Desk API", "1.2.3", map[string]HealthChecker{
		"database": fakeCheck{},
		"storage":  fakeCheck{},
	})
	degraded := NewSystemController("PDF Desk API", "1.2.3", map[string]HealthChecker{
		"database": fakeCheck{},
		"storage":  fakeCheck{err: errors.New("bucket unreachable")},
	})

	router := gin.New()
	router.GET("/ok", healthy.Health)
	router.GET("/bad", degraded.Health)
	router.GET("/version", healthy.Version)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status     string                       `json:"status"`
		Components map[string]map[string]string `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "up", body.Components["database"]["status"])
	assert.Equal(t, "bucket unreachable", body.Components["storage"]["error"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.JSONEq(t, `{"name":"PDF Desk API","version":"1.2.3"}`, w.Body.String())
}

func multipartRequest(t *testing.T, target string, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestToolRequestsRejectedBeforeQuota(t *testing.T) {
	// the tool service is never reached for malformed requests
	tc := NewToolController(nil, services.NewToolJobs(processing.NewPDF(), nil), nil)
	router := gin.New()
	router.POST("/compress", tc.Compress)
	router.POST("/organize/:action", tc.Organize)

	tests := []struct {
		name    string
		req     *http.Request
		message string
	}{
		{
			name:    "not multipart",
			req:     httptest.NewRequest(http.MethodPost, "/compress", bytes.NewReader([]byte("{}"))),
			message: "Expected a multipart upload",
		},
		{
			name:    "no files",
			req:     multipartRequest(t, "/compress", nil, map[string]string{"level": "high"}),
			message: `No files uploaded in field "files"`,
		},
		{
			name:    "two files for a single-file tool",
			req:     multipartRequest(t, "/compress", map[string][]byte{"a.pdf": []byte("%PDF"), "b.pdf": []byte("%PDF")}, nil),
			message: "Upload exactly one file",
		},
		{
			name:    "merge needs two files",
			req:     multipartRequest(t, "/organize/merge", map[string][]byte{"a.pdf": []byte("%PDF")}, nil),
			message: "Merging needs at least two PDF files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tt.req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		query       string
		page, limit int
	}{
		{"", 1, 20},
		{"?page=3&limit=50", 3, 50},
		{"?limit=5000", 1, maxPageLimit},
		{"?page=abc&limit=-1", 1, 20},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
		page, limit := pageParams(c)
		assert.Equal(t, tt.page, page, tt.query)
		assert.Equal(t, tt.limit, limit, tt.query)
	}
}
