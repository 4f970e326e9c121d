package mesh

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchCalibration_Success(t *testing.T) {
	body := testCalibrationJSON(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("expected Accept: application/json, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cal, err := FetchCalibration(context.Background(), srv.URL, ModeUpsample, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("FetchCalibration() error: %v", err)
	}
	if cal.Mode != ModeUpsample {
		t.Errorf("Mode = %s, want upsample", cal.Mode)
	}
	if len(cal.Segments) != len(FrameSegments) {
		t.Errorf("len(Segments) = %d, want %d", len(cal.Segments), len(FrameSegments))
	}
}

func TestFetchCalibration_EmptyURL(t *testing.T) {
	_, err := FetchCalibration(context.Background(), "", ModeNormal)
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
	if !strings.Contains(err.Error(), "URL is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFetchCalibration_InvalidDocumentNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		_, _ = w.Write([]byte(`{"normal": {}}`))
	}))
	defer srv.Close()

	_, err := FetchCalibration(context.Background(), srv.URL, ModeNormal,
		WithHTTPClient(srv.Client()), WithMaxRetries(3), WithBaseBackoff(time.Millisecond))

	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestFetchCalibration_ServerError_Retries(t *testing.T) {
	body := testCalibrationJSON(t)
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := attempts.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cal, err := FetchCalibration(context.Background(), srv.URL, ModeNormal,
		WithHTTPClient(srv.Client()), WithMaxRetries(3), WithBaseBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if cal == nil {
		t.Fatal("expected non-nil calibration")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestFetchCalibration_AllRetriesFail(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := FetchCalibration(context.Background(), srv.URL, ModeNormal,
		WithHTTPClient(srv.Client()), WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
	if err == nil {
		t.Fatal("expected error when all retries fail")
	}
	if !strings.Contains(err.Error(), "all 2 attempts failed") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), "status 503") {
		t.Errorf("expected last status in error, got: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestFetchCalibration_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := FetchCalibration(ctx, srv.URL, ModeNormal,
		WithHTTPClient(srv.Client()), WithMaxRetries(5), WithBaseBackoff(time.Second))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Error("fetch should stop waiting once the context is done")
	}
}

func TestFetchCalibration_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := FetchCalibration(context.Background(), srv.URL, ModeNormal,
		WithTimeout(20*time.Millisecond), WithMaxRetries(1))
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
