package handler

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/repository"
	"github.com/kursadbilgin/safeher/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const testToken = "tok-1"

func TestContactIntegration_CRUD(t *testing.T) {
	t.Parallel()

	svc := &stubContactService{
		addFn: func(ctx context.Context, name string, phone string) (*domain.Contact, error) {
			c := &domain.Contact{ID: "c-1", Name: strings.TrimSpace(name), Phone: domain.NormalizePhone(phone)}
			if err := c.Validate(); err != nil {
				return nil, err
			}
			return c, nil
		},
		listFn: func(ctx context.Context) ([]domain.Contact, error) {
			return []domain.Contact{
				{ID: "c-1", Name: "Asha", Phone: "9998887770", Position: 0},
				{ID: "c-2", Name: "Ravi", Phone: "9998887771", Position: 1},
			}, nil
		},
		removeFn: func(ctx context.Context, id string) error {
			if id != "c-1" {
				return domain.ErrNotFound
			}
			return nil
		},
	}
	app := newTestApp(t, withContacts(svc))

	resp, body := performRequest(t, app, http.MethodPost, "/v1/contacts", `{"name":"Asha","phone":"999-888-7770"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}
	var created map[string]any
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created["phone"] != "9998887770" {
		t.Fatalf("phone = %v, want normalized", created["phone"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/contacts", `{"name":"","phone":"9998887770"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing name", resp.StatusCode)
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/contacts", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var listed listContactsResponse
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if listed.Meta.Total != 2 || listed.Data[0].Name != "Asha" || listed.Data[1].Name != "Ravi" {
		t.Fatalf("list = %+v", listed)
	}

	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/contacts/c-1", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	resp, _ = performRequest(t, app, http.MethodDelete, "/v1/contacts/c-9", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestContactIntegration_CountClearAndConflict(t *testing.T) {
	t.Parallel()

	svc := &stubContactService{
		addFn: func(context.Context, string, string) (*domain.Contact, error) {
			return nil, domain.ErrConflict
		},
		countFn: func(context.Context) (int64, error) { return 3, nil },
		clearFn: func(context.Context) (int64, error) { return 3, nil },
	}
	app := newTestApp(t, withContacts(svc))

	resp, body := performRequest(t, app, http.MethodGet, "/v1/contacts/count", "")
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"count":3`) {
		t.Fatalf("count response = %d %s", resp.StatusCode, string(body))
	}

	resp, body = performRequest(t, app, http.MethodDelete, "/v1/contacts", "")
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"removed":3`) {
		t.Fatalf("clear response = %d %s", resp.StatusCode, string(body))
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/contacts", `{"name":"Asha","phone":"9998887770"}`)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAuthIntegration_RequiresBearerToken(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, withContacts(&stubContactService{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/contacts", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/contacts", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer wrong")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for unknown token", resp.StatusCode)
	}
}

func TestAuthIntegration_OTPFlow(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/auth/otp/send", `{"phone":"9998887770"}`)
	if resp.StatusCode != fiber.StatusAccepted || !strings.Contains(string(body), `"sessionId":"sess-1"`) {
		t.Fatalf("send response = %d %s", resp.StatusCode, string(body))
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/auth/otp/verify", `{"sessionId":"sess-1","code":"000000"}`)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for wrong code", resp.StatusCode)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/auth/otp/verify", `{"sessionId":"sess-1","code":"123456"}`)
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), testToken) {
		t.Fatalf("verify response = %d %s", resp.StatusCode, string(body))
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/auth/logout", "")
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestAlertIntegration_CreateAlert(t *testing.T) {
	t.Parallel()

	lat, lon := 12.9716, 77.5946
	testCases := []struct {
		name       string
		body       string
		triggerFn  func(ctx context.Context, confirmed bool) (*domain.AlertAttempt, error)
		wantStatus int
		wantBody   string
	}{
		{
			name: "succeeded",
			body: `{"confirmed":true}`,
			triggerFn: func(_ context.Context, confirmed bool) (*domain.AlertAttempt, error) {
				if !confirmed {
					t.Error("confirmed flag should be passed through")
				}
				return &domain.AlertAttempt{
					ID:               "a-1",
					Trigger:          domain.TriggerManual,
					ContactsTargeted: []string{"9998887770", "9998887771"},
					Outcome:          domain.OutcomeSucceeded,
					SentCount:        2,
					Latitude:         &lat,
					Longitude:        &lon,
				}, nil
			},
			wantStatus: fiber.StatusCreated,
			wantBody:   `"sentCount":2`,
		},
		{
			name: "cancelled",
			body: ``,
			triggerFn: func(context.Context, bool) (*domain.AlertAttempt, error) {
				return &domain.AlertAttempt{ID: "a-2", Trigger: domain.TriggerManual, Outcome: domain.OutcomeCancelled}, nil
			},
			wantStatus: fiber.StatusOK,
			wantBody:   `"outcome":"cancelled"`,
		},
		{
			name: "all recipients failed",
			body: `{"confirmed":true}`,
			triggerFn: func(context.Context, bool) (*domain.AlertAttempt, error) {
				failure := &domain.DeliveryFailedError{Recipients: []domain.RecipientError{{Phone: "9998887770", Err: errors.New("no service")}}}
				return &domain.AlertAttempt{ID: "a-3", Trigger: domain.TriggerManual, Outcome: domain.OutcomeFailed}, failure
			},
			wantStatus: fiber.StatusBadGateway,
			wantBody:   `"outcome":"failed"`,
		},
		{
			name: "no contacts",
			body: `{"confirmed":true}`,
			triggerFn: func(context.Context, bool) (*domain.AlertAttempt, error) {
				return nil, domain.ErrNoContacts
			},
			wantStatus: fiber.StatusUnprocessableEntity,
		},
		{
			name: "sms permission denied",
			body: `{"confirmed":true}`,
			triggerFn: func(context.Context, bool) (*domain.AlertAttempt, error) {
				return nil, domain.NewPermissionDenied(domain.CapabilitySMS)
			},
			wantStatus: fiber.StatusForbidden,
		},
		{
			name: "location unavailable",
			body: `{"confirmed":true}`,
			triggerFn: func(context.Context, bool) (*domain.AlertAttempt, error) {
				return nil, domain.ErrLocationUnavailable
			},
			wantStatus: fiber.StatusServiceUnavailable,
		},
		{
			name: "dispatch in progress",
			body: `{"confirmed":true}`,
			triggerFn: func(context.Context, bool) (*domain.AlertAttempt, error) {
				return nil, domain.ErrDispatchInProgress
			},
			wantStatus: fiber.StatusConflict,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			app := newTestApp(t, withAlerts(&stubAlertTrigger{triggerFn: tc.triggerFn}, &stubAlertHistory{}))
			resp, body := performRequest(t, app, http.MethodPost, "/v1/alerts", tc.body)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, string(body))
			}
			if tc.wantBody != "" && !strings.Contains(string(body), tc.wantBody) {
				t.Fatalf("body = %s, want %s", string(body), tc.wantBody)
			}
		})
	}
}

func TestAlertIntegration_History(t *testing.T) {
	t.Parallel()

	history := &stubAlertHistory{
		listFn: func(_ context.Context, params repository.ListAlertsParams) ([]domain.AlertAttempt, int64, error) {
			if params.Outcome == nil || *params.Outcome != domain.OutcomeFailed {
				t.Errorf("outcome filter = %v, want failed", params.Outcome)
			}
			if params.Page != 2 || params.PageSize != 10 {
				t.Errorf("paging = %d/%d, want 2/10", params.Page, params.PageSize)
			}
			return []domain.AlertAttempt{{ID: "a-1", Outcome: domain.OutcomeFailed, CreatedAt: time.Now().UTC()}}, 11, nil
		},
	}
	app := newTestApp(t, withAlerts(&stubAlertTrigger{}, history))

	resp, body := performRequest(t, app, http.MethodGet, "/v1/alerts?outcome=failed&page=2&pageSize=10", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	var listed listAlertsResponse
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if listed.Meta.Total != 11 || len(listed.Data) != 1 {
		t.Fatalf("list = %+v", listed)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/alerts?outcome=maybe", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid outcome", resp.StatusCode)
	}
	resp, _ = performRequest(t, app, http.MethodGet, "/v1/alerts?pageSize=500", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for oversized page", resp.StatusCode)
	}
	resp, _ = performRequest(t, app, http.MethodGet, "/v1/alerts/a-404", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPermissionIntegration(t *testing.T) {
	t.Parallel()

	svc := &stubPermissionService{grants: map[domain.Capability]bool{
		domain.CapabilityLocation:      true,
		domain.CapabilitySMS:           false,
		domain.CapabilityNotifications: false,
	}}
	app := newTestApp(t, withPermissions(svc))

	resp, body := performRequest(t, app, http.MethodGet, "/v1/permissions", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `{"capability":"location","granted":true}`) {
		t.Fatalf("body = %s", string(body))
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/permissions/sms/request", "")
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(string(body), `"granted":true`) {
		t.Fatalf("request response = %d %s", resp.StatusCode, string(body))
	}
	if !svc.grants[domain.CapabilitySMS] {
		t.Fatal("sms grant should be recorded")
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/permissions/camera/request", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown capability", resp.StatusCode)
	}
}

func TestHealthIntegration_LivezAndReadyz(t *testing.T) {
	t.Parallel()

	t.Run("livez returns 200", func(t *testing.T) {
		t.Parallel()

		app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
		RegisterHealthRoutes(app, DatabaseProbe(sql.OpenDB(stubConnector{})), RedisProbe(newStubRedisClient(nil)))

		resp, body := performRequest(t, app, http.MethodGet, "/livez", "")
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
		}
	})

	testCases := []struct {
		name       string
		pingErr    error
		redisErr   error
		link       LinkChecker
		wantStatus int
		wantDown   string
	}{
		{name: "healthy", link: stubLink(true), wantStatus: fiber.StatusOK},
		{name: "no device link configured", wantStatus: fiber.StatusOK},
		{name: "database down", pingErr: errors.New("db down"), link: stubLink(true), wantStatus: fiber.StatusServiceUnavailable, wantDown: "database"},
		{name: "redis down", redisErr: errors.New("redis down"), link: stubLink(true), wantStatus: fiber.StatusServiceUnavailable, wantDown: "redis"},
		{name: "device link down", link: stubLink(false), wantStatus: fiber.StatusServiceUnavailable, wantDown: "device"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sqlDB := sql.OpenDB(stubConnector{pingErr: tc.pingErr})
			t.Cleanup(func() { _ = sqlDB.Close() })

			rdb := newStubRedisClient(tc.redisErr)
			t.Cleanup(func() { _ = rdb.Close() })

			app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
			RegisterHealthRoutes(app, DatabaseProbe(sqlDB), RedisProbe(rdb), ConnectionProbe("device", tc.link))

			resp, body := performRequest(t, app, http.MethodGet, "/readyz", "")
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tc.wantStatus, string(body))
			}
			if tc.wantDown != "" && !strings.Contains(string(body), `"`+tc.wantDown+`":"down"`) {
				t.Fatalf("body = %s, want %s down", string(body), tc.wantDown)
			}
		})
	}
}

type testAppOption func(t *testing.T, app *fiber.App, auth fiber.Handler)

func withContacts(svc ContactService) testAppOption {
	return func(t *testing.T, app *fiber.App, auth fiber.Handler) {
		if err := RegisterContactRoutes(app, svc, auth); err != nil {
			t.Fatalf("RegisterContactRoutes() error = %v", err)
		}
	}
}

func withAlerts(trigger AlertTrigger, history AlertHistory) testAppOption {
	return func(t *testing.T, app *fiber.App, auth fiber.Handler) {
		if err := RegisterAlertRoutes(app, trigger, history, auth); err != nil {
			t.Fatalf("RegisterAlertRoutes() error = %v", err)
		}
	}
}

func withPermissions(svc PermissionService) testAppOption {
	return func(t *testing.T, app *fiber.App, auth fiber.Handler) {
		if err := RegisterPermissionRoutes(app, svc, auth); err != nil {
			t.Fatalf("RegisterPermissionRoutes() error = %v", err)
		}
	}
}

func newTestApp(t *testing.T, opts ...testAppOption) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	auth, err := RegisterAuthRoutes(app, &stubAuthService{})
	if err != nil {
		t.Fatalf("RegisterAuthRoutes() error = %v", err)
	}
	for _, opt := range opts {
		opt(t, app, auth)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+testToken)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

type stubContactService struct {
	addFn    func(ctx context.Context, name string, phone string) (*domain.Contact, error)
	updateFn func(ctx context.Context, id string, name string, phone string) (*domain.Contact, error)
	removeFn func(ctx context.Context, id string) error
	getFn    func(ctx context.Context, id string) (*domain.Contact, error)
	listFn   func(ctx context.Context) ([]domain.Contact, error)
	countFn  func(ctx context.Context) (int64, error)
	clearFn  func(ctx context.Context) (int64, error)
}

func (s *stubContactService) Add(ctx context.Context, name string, phone string) (*domain.Contact, error) {
	if s.addFn != nil {
		return s.addFn(ctx, name, phone)
	}
	return nil, errors.New("not implemented")
}

func (s *stubContactService) Update(ctx context.Context, id string, name string, phone string) (*domain.Contact, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, name, phone)
	}
	return nil, domain.ErrNotFound
}

func (s *stubContactService) Remove(ctx context.Context, id string) error {
	if s.removeFn != nil {
		return s.removeFn(ctx, id)
	}
	return nil
}

func (s *stubContactService) Get(ctx context.Context, id string) (*domain.Contact, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubContactService) List(ctx context.Context) ([]domain.Contact, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubContactService) Count(ctx context.Context) (int64, error) {
	if s.countFn != nil {
		return s.countFn(ctx)
	}
	return 0, nil
}

func (s *stubContactService) Clear(ctx context.Context) (int64, error) {
	if s.clearFn != nil {
		return s.clearFn(ctx)
	}
	return 0, nil
}

type stubAlertTrigger struct {
	triggerFn func(ctx context.Context, confirmed bool) (*domain.AlertAttempt, error)
}

func (s *stubAlertTrigger) Trigger(ctx context.Context, confirmed bool) (*domain.AlertAttempt, error) {
	if s.triggerFn != nil {
		return s.triggerFn(ctx, confirmed)
	}
	return nil, errors.New("not implemented")
}

type stubAlertHistory struct {
	getByIDFn func(ctx context.Context, id string) (*domain.AlertAttempt, error)
	listFn    func(ctx context.Context, params repository.ListAlertsParams) ([]domain.AlertAttempt, int64, error)
}

func (s *stubAlertHistory) GetByID(ctx context.Context, id string) (*domain.AlertAttempt, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubAlertHistory) List(ctx context.Context, params repository.ListAlertsParams) ([]domain.AlertAttempt, int64, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return nil, 0, nil
}

type stubAuthService struct{}

func (stubAuthService) SendOTP(context.Context, string) (string, error) { return "sess-1", nil }

func (stubAuthService) Verify(_ context.Context, sessionID string, code string) (string, error) {
	if sessionID != "sess-1" || code != "123456" {
		return "", domain.ErrUnauthorized
	}
	return testToken, nil
}

func (stubAuthService) Authenticate(_ context.Context, token string) (string, error) {
	if token != testToken {
		return "", domain.ErrUnauthorized
	}
	return "9998887770", nil
}

func (stubAuthService) Logout(_ context.Context, token string) error {
	if token == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

type stubPermissionService struct {
	grants map[domain.Capability]bool
}

func (s *stubPermissionService) All(context.Context) (map[domain.Capability]bool, error) {
	return s.grants, nil
}

func (s *stubPermissionService) Request(_ context.Context, capability domain.Capability) (bool, error) {
	s.grants[capability] = true
	return true, nil
}

type stubLink bool

func (l stubLink) IsConnected() bool { return bool(l) }

type stubConnector struct {
	pingErr error
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) {
	return stubConn(c), nil
}

func (c stubConnector) Driver() driver.Driver {
	return stubDriver(c)
}

type stubDriver struct {
	pingErr error
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return stubConn(d), nil
}

type stubConn struct {
	pingErr error
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c stubConn) Close() error                        { return nil }
func (c stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }
func (c stubConn) Ping(context.Context) error          { return c.pingErr }

type stubRedisHook struct {
	pingErr error
}

func (h stubRedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h stubRedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "ping") && h.pingErr != nil {
			cmd.SetErr(h.pingErr)
			return h.pingErr
		}
		cmd.SetErr(nil)
		return nil
	}
}

func (h stubRedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			cmd.SetErr(nil)
		}
		return nil
	}
}

func newStubRedisClient(pingErr error) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:6379",
		DialTimeout:  time.Millisecond,
		ReadTimeout:  time.Millisecond,
		WriteTimeout: time.Millisecond,
	})
	rdb.AddHook(stubRedisHook{pingErr: pingErr})
	return rdb
}
