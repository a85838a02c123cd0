package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestSMSGatewaySendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody smsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("X-Message-ID", "sms-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	gateway, err := NewSMSGateway(server.URL)
	if err != nil {
		t.Fatalf("NewSMSGateway() error = %v", err)
	}

	result, err := gateway.SendSMS(context.Background(), "9998887770", "help")
	if err != nil {
		t.Fatalf("SendSMS() unexpected error: %v", err)
	}
	if result.MessageID != "sms-1" || result.Parts != 1 {
		t.Fatalf("result = %+v", result)
	}
	if gotBody.To != "9998887770" || len(gotBody.Parts) != 1 || gotBody.Parts[0] != "help" {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestSMSGatewaySendStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name           string
		statusCode     int
		wantTransient  bool
		wantStructural bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest},
		{name: "unauthorized is structural", statusCode: http.StatusUnauthorized, wantStructural: true},
		{name: "not found is structural", statusCode: http.StatusNotFound, wantStructural: true},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("gateway failed"))
			}))
			defer server.Close()

			gateway, err := NewSMSGateway(server.URL)
			if err != nil {
				t.Fatalf("NewSMSGateway() error = %v", err)
			}

			_, err = gateway.SendSMS(context.Background(), "9998887770", "help")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}
			if got := IsStructural(err); got != tc.wantStructural {
				t.Fatalf("IsStructural() = %v, want %v", got, tc.wantStructural)
			}

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected ProviderError, got %T", err)
			}
			if providerErr.StatusCode != tc.statusCode {
				t.Fatalf("ProviderError.StatusCode = %d, want %d", providerErr.StatusCode, tc.statusCode)
			}
		})
	}
}

func TestSMSGatewaySendTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	gateway, err := NewSMSGatewayWithClient(server.URL, client)
	if err != nil {
		t.Fatalf("NewSMSGatewayWithClient() error = %v", err)
	}

	_, err = gateway.SendSMS(context.Background(), "9998887770", "help")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
	if got := FailureReason(err); got != "transient_error" {
		t.Fatalf("FailureReason() = %q, want transient_error", got)
	}
}

func TestNewSMSGatewayRejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewSMSGateway(" "); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewSMSGateway("not a url"); err == nil {
		t.Fatal("expected error for invalid endpoint")
	}
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	if got := SplitMessage(strings.Repeat("a", 160)); len(got) != 1 {
		t.Fatalf("160 chars split into %d parts, want 1", len(got))
	}

	got := SplitMessage(strings.Repeat("a", 161))
	if len(got) != 2 || len([]rune(got[0])) != 153 || len([]rune(got[1])) != 8 {
		t.Fatalf("161 chars split = %d parts (%d, %d)", len(got), len(got[0]), len(got[1]))
	}

	if got := SplitMessage(strings.Repeat("a", 306)); len(got) != 2 {
		t.Fatalf("306 chars split into %d parts, want 2", len(got))
	}
}

func TestGeocoderReverseGeocodeCaches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("lat") != "12.971600" || r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"MG Road, Bengaluru"}`))
	}))
	defer server.Close()

	geocoder, err := NewGeocoder(server.URL)
	if err != nil {
		t.Fatalf("NewGeocoder() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		address, err := geocoder.ReverseGeocode(context.Background(), 12.9716, 77.5946)
		if err != nil {
			t.Fatalf("ReverseGeocode() error = %v", err)
		}
		if address != "MG Road, Bengaluru" {
			t.Fatalf("address = %q", address)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("geocoder calls = %d, want 1", calls.Load())
	}
}

func TestGeocoderReverseGeocodeEmptyAddress(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer server.Close()

	geocoder, err := NewGeocoder(server.URL)
	if err != nil {
		t.Fatalf("NewGeocoder() error = %v", err)
	}

	if _, err := geocoder.ReverseGeocode(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestOTPClientFlow(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/send-otp":
			var body sendOTPRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Phone != "+919998887770" {
				t.Errorf("phoneNo = %q", body.Phone)
			}
			_, _ = w.Write([]byte(`{"sessionId":"sess-1"}`))
		case "/api/auth/verify-otp":
			var body verifyOTPRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Code != "123456" {
				_, _ = w.Write([]byte(`{"success":false}`))
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"token":"tok-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewOTPClient(server.URL + "/api/auth/")
	if err != nil {
		t.Fatalf("NewOTPClient() error = %v", err)
	}

	sessionID, err := client.SendOTP(context.Background(), "+919998887770")
	if err != nil {
		t.Fatalf("SendOTP() error = %v", err)
	}
	if sessionID != "sess-1" {
		t.Fatalf("sessionID = %q", sessionID)
	}

	token, err := client.VerifyOTP(context.Background(), "+919998887770", sessionID, "000000")
	if err != nil || token != "" {
		t.Fatalf("VerifyOTP(wrong) = %q, %v", token, err)
	}

	token, err = client.VerifyOTP(context.Background(), "+919998887770", sessionID, "123456")
	if err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("token = %q, want tok-1", token)
	}
}
