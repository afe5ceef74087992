package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
	"github.com/hamshmas/personal-rehabilitation-docs/gateway"
	"github.com/hamshmas/personal-rehabilitation-docs/internal/fakes"
)

const (
	testKey      = "0123456789abcdef"
	testClientID = "rehab-client"
	testIdentity = "9001011234567"
	// testIdentity under testKey/testClientID
	encryptedIdentity = "HwrhU/gIHj93pwyfKJgjNA=="
)

func newClient(t *testing.T, h *fakes.Hyphen, mutate func(*gateway.Config), opts ...gateway.Option) *gateway.Client {
	t.Helper()
	cfg := gateway.Config{
		BaseURL:      h.URL(),
		ClientID:     testClientID,
		APIKey:       "hkey-123",
		TransportKey: testKey,
		TestMode:     true,
		Timeout:      2 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	logger, _ := test.NewNullLogger()
	c, err := gateway.New(cfg, append([]gateway.Option{gateway.WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return c
}

func kind(t *testing.T, err error) gateway.ErrorKind {
	t.Helper()
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge), "expected *gateway.Error, got %T: %v", err, err)
	return ge.Kind
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := gateway.New(gateway.Config{APIKey: "k", TransportKey: testKey})
	require.Error(t, err)
	_, err = gateway.New(gateway.Config{ClientID: "c", APIKey: "k", TransportKey: "short"})
	require.Error(t, err)
}

func TestCall_ResidentRegister_BearerAndHeaders(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	h.RequireBearer = map[string]bool{"/v1/gov24/resident/copy": true}
	c := newClient(t, h, nil)

	res, err := c.Call(context.Background(), gateway.Request{
		DocumentType: document.ResidentRegister,
		Name:         " 홍길동 ",
		Identity:     "900101-1234567",
		Options:      gateway.Options{PhoneNo: "010-1234-5678", Telecom: "SKT"},
	})
	require.NoError(t, err)
	assert.Equal(t, document.ResidentRegister, res.DocumentType)
	assert.Equal(t, "0000", res.Code)
	assert.JSONEq(t, `{"path":"/v1/gov24/resident/copy"}`, string(res.Artifact))
	assert.Contains(t, string(res.RawResponse), `"code":"0000"`)

	rec, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "/v1/gov24/resident/copy", rec.Path)
	assert.Equal(t, "application/json", rec.Header.Get("Content-Type"))
	assert.Equal(t, testClientID, rec.Header.Get("user-id"))
	assert.Equal(t, "hkey-123", rec.Header.Get("Hkey"))
	assert.Equal(t, "test", rec.Header.Get("hyphen-gustation"))
	assert.Equal(t, "Bearer tok-1", rec.Header.Get("Authorization"))

	assert.Equal(t, map[string]any{
		"name":     "홍길동",
		"jumin":    encryptedIdentity,
		"certType": "KAKAO",
		"phoneNo":  "01012345678",
		"telecom":  "SKT",
	}, rec.Body)
	assert.Equal(t, 1, h.TokenCalls())
}

func TestCall_HeaderOnlyEndpoint(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	c := newClient(t, h, func(cfg *gateway.Config) { cfg.TestMode = false })

	_, err := c.Call(context.Background(), gateway.Request{
		DocumentType: document.PensionCert,
		Name:         "김철수",
		Identity:     testIdentity,
		Options:      gateway.Options{CertType: "PASS"},
	})
	require.NoError(t, err)

	rec, _ := h.Last()
	assert.Equal(t, "/v1/nps/status", rec.Path)
	assert.Empty(t, rec.Header.Get("Authorization"))
	assert.Empty(t, rec.Header.Get("hyphen-gustation"))
	assert.Equal(t, "PASS", rec.Body["certType"])
	assert.Equal(t, 0, h.TokenCalls())
}

func TestCall_EndpointBodies(t *testing.T) {
	t.Parallel()
	clk := newClock() // 2025
	h := fakes.NewHyphen(t)
	c := newClient(t, h, nil, gateway.WithClock(clk.Now))

	tests := []struct {
		name string
		req  gateway.Request
		path string
		want map[string]any
	}{
		{
			name: "real estate has no identity",
			req: gateway.Request{DocumentType: document.RealEstateRegister, Name: "n", Identity: testIdentity,
				Options: gateway.Options{Address: "서울특별시 강남구 테헤란로 1", RegisterType: "collective"}},
			path: "/v1/court/realestate",
			want: map[string]any{"address": "서울특별시 강남구 테헤란로 1", "registerType": "3"},
		},
		{
			name: "real estate defaults to building",
			req: gateway.Request{DocumentType: document.RealEstateRegister,
				Options: gateway.Options{Address: "부산광역시", RegisterType: "castle"}},
			path: "/v1/court/realestate",
			want: map[string]any{"address": "부산광역시", "registerType": "2"},
		},
		{
			name: "business number without dashes",
			req:  gateway.Request{DocumentType: document.BusinessLicense, Options: gateway.Options{BusinessNo: "123-45-67890"}},
			path: "/v1/nts/business/status",
			want: map[string]any{"businessNo": "1234567890"},
		},
		{
			name: "income defaults to previous year",
			req:  gateway.Request{DocumentType: document.IncomeCert, Name: "김철수", Identity: testIdentity},
			path: "/v1/nts/income",
			want: map[string]any{"name": "김철수", "jumin": encryptedIdentity, "certType": "KAKAO", "year": "2024"},
		},
		{
			name: "payment period",
			req: gateway.Request{DocumentType: document.HealthInsurancePayment, Name: "김철수", Identity: testIdentity,
				Options: gateway.Options{StartDate: "202401", EndDate: "202412"}},
			path: "/v1/nhis/payment",
			want: map[string]any{"name": "김철수", "jumin": encryptedIdentity, "certType": "KAKAO", "startDate": "202401", "endDate": "202412"},
		},
		{
			name: "vehicle",
			req: gateway.Request{DocumentType: document.VehicleRegister, Name: "김철수", Identity: testIdentity,
				Options: gateway.Options{CarNo: "12가 3456"}},
			path: "/v1/gov24/vehicle/registration",
			want: map[string]any{"name": "김철수", "jumin": encryptedIdentity, "certType": "KAKAO", "carNo": "12가3456"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Call(context.Background(), tc.req)
			require.NoError(t, err)
			var found bool
			for _, rec := range h.Requests() {
				if rec.Path == tc.path && equalBody(rec.Body, tc.want) {
					found = true
				}
			}
			assert.True(t, found, "no request to %s with body %v in %v", tc.path, tc.want, h.Requests())
		})
	}
}

func equalBody(a, b map[string]any) bool {
	x, _ := json.Marshal(a)
	y, _ := json.Marshal(b)
	return string(x) == string(y)
}

func TestCall_CertificateFile(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	c := newClient(t, h, nil)
	cipher, err := gateway.NewTransportCipher(testKey, testClientID)
	require.NoError(t, err)

	_, err = c.Call(context.Background(), gateway.Request{
		DocumentType: document.HealthInsuranceCert,
		Name:         "김철수",
		Identity:     testIdentity,
		Options: gateway.Options{
			CertType:    gateway.CertTypeCertFile,
			Certificate: &gateway.CertificateMaterial{CertificatePayload: "Q0VSVA", KeyPayload: "S0VZ", Password: "pw!"},
		},
	})
	require.NoError(t, err)

	rec, _ := h.Last()
	assert.Equal(t, "CERT", rec.Body["certType"])
	assert.Equal(t, "Q0VSVA", rec.Body["der2pem"])
	assert.Equal(t, "S0VZ", rec.Body["key2pem"])
	pw, err := cipher.Decrypt(rec.Body["certPw"].(string))
	require.NoError(t, err)
	assert.Equal(t, "pw!", pw)
}

func TestCall_InvalidRequests(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	c := newClient(t, h, nil)
	ctx := context.Background()

	_, err := c.Call(ctx, gateway.Request{DocumentType: document.BankStatement, Name: "n", Identity: testIdentity})
	assert.Equal(t, gateway.KindUnsupportedDocument, kind(t, err))
	assert.ErrorIs(t, err, gateway.ErrUnsupportedDocument)

	invalid := []gateway.Request{
		{DocumentType: document.VehicleRegister, Name: "n", Identity: testIdentity},
		{DocumentType: document.HealthInsurancePayment, Name: "n", Identity: testIdentity, Options: gateway.Options{StartDate: "2024", EndDate: "202412"}},
		{DocumentType: document.HealthInsurancePayment, Name: "n", Identity: testIdentity, Options: gateway.Options{StartDate: "202412", EndDate: "202401"}},
		{DocumentType: document.IncomeCert, Name: "n", Identity: testIdentity, Options: gateway.Options{Year: "24"}},
		{DocumentType: document.BusinessLicense, Options: gateway.Options{BusinessNo: "12-34"}},
		{DocumentType: document.PensionCert, Identity: testIdentity},
		{DocumentType: document.PensionCert, Name: "n"},
		{DocumentType: document.PensionCert, Name: "n", Identity: testIdentity, Options: gateway.Options{CertType: "FAX"}},
		{DocumentType: document.PensionCert, Name: "n", Identity: testIdentity, Options: gateway.Options{CertType: "CERT"}},
		{DocumentType: document.ResidentRegister, Name: "n", Identity: testIdentity, Options: gateway.Options{Telecom: "ABC"}},
	}
	for _, req := range invalid {
		_, err := c.Call(ctx, req)
		assert.Equal(t, gateway.KindInvalidRequest, kind(t, err), "%+v", req)
		assert.False(t, gateway.IsRetryable(err))
	}
	assert.Empty(t, h.Requests())
	assert.Equal(t, 0, h.TokenCalls())
}

func TestCall_UpstreamResponses(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	c := newClient(t, h, nil)
	ctx := context.Background()
	req := func(dt document.Type) gateway.Request {
		return gateway.Request{DocumentType: dt, Name: "김철수", Identity: testIdentity}
	}

	h.Script("/v1/nps/status", fakes.Response{Body: map[string]any{"code": "9001", "message": "본인인증 실패"}})
	_, err := c.Call(ctx, req(document.PensionCert))
	require.ErrorIs(t, err, gateway.ErrUpstream)
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "9001", ge.Code)
	assert.Equal(t, "본인인증 실패", ge.Message)
	assert.Equal(t, http.StatusOK, ge.StatusCode)
	assert.False(t, gateway.IsRetryable(err))

	h.Script("/v1/nhis/qualification", fakes.Response{Status: http.StatusServiceUnavailable, Body: "maintenance"})
	_, err = c.Call(ctx, req(document.HealthInsuranceCert))
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gateway.KindUpstream, ge.Kind)
	assert.Equal(t, "503", ge.Code)
	assert.Equal(t, "maintenance", ge.Message)
	assert.True(t, gateway.IsRetryable(err))

	h.Script("/v1/ei/status", fakes.Response{Body: "<html>oops</html>"})
	_, err = c.Call(ctx, req(document.EmploymentCert))
	assert.Equal(t, gateway.KindUpstream, kind(t, err))

	h.Script("/v1/nts/income", fakes.Response{Body: map[string]any{"code": 0, "success": true, "data": []int{1, 2}}})
	res, err := c.Call(ctx, req(document.IncomeCert))
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, string(res.Artifact))

	h.Script("/v1/nhis/qualification", fakes.Response{Body: map[string]any{
		"common": map[string]any{"errYn": "N", "errCd": "", "errMsg": ""},
		"list":   []string{"a"},
	}})
	res, err = c.Call(ctx, req(document.HealthInsuranceCert))
	require.NoError(t, err)
	assert.Equal(t, res.RawResponse, res.Artifact)

	h.Script("/v1/nhis/qualification", fakes.Response{Body: map[string]any{
		"common": map[string]any{"errYn": "Y", "errCd": 1234, "errMsg": "조회 결과 없음"},
	}})
	_, err = c.Call(ctx, req(document.HealthInsuranceCert))
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "1234", ge.Code)
	assert.Equal(t, "조회 결과 없음", ge.Message)
}

func TestCall_NetworkFailures(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	h.Script("/v1/nps/status", fakes.Response{Delay: time.Second})
	c := newClient(t, h, func(cfg *gateway.Config) { cfg.Timeout = 100 * time.Millisecond })

	_, err := c.Call(context.Background(), gateway.Request{DocumentType: document.PensionCert, Name: "n", Identity: testIdentity})
	assert.Equal(t, gateway.KindNetwork, kind(t, err))
	assert.True(t, gateway.IsRetryable(err))

	down := fakes.NewHyphen(t)
	c = newClient(t, down, nil)
	down.Server.Close()
	_, err = c.Call(context.Background(), gateway.Request{DocumentType: document.PensionCert, Name: "n", Identity: testIdentity})
	assert.Equal(t, gateway.KindNetwork, kind(t, err))
}

func TestCall_TokenFailures(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	h.TokenStatus = http.StatusUnauthorized
	c := newClient(t, h, nil)

	_, err := c.Call(context.Background(), gateway.Request{DocumentType: document.LocalTaxCert, Name: "n", Identity: testIdentity})
	require.ErrorIs(t, err, gateway.ErrTokenFetchFailed)
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, document.LocalTaxCert, ge.DocumentType)
	assert.Equal(t, http.StatusUnauthorized, ge.StatusCode)
	assert.Empty(t, h.Requests(), "no issuance call without a token")
}

func TestCall_RejectedTokenIsDropped(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	h.RequireBearer = map[string]bool{"/v1/gov24/tax/local": true}
	c := newClient(t, h, nil)
	req := gateway.Request{DocumentType: document.LocalTaxCert, Name: "n", Identity: testIdentity}

	_, err := c.Call(context.Background(), req)
	require.NoError(t, err)

	h.Token = "tok-2" // server rotated the token
	_, err = c.Call(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 1, h.TokenCalls())

	_, err = c.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, h.TokenCalls())
}

func TestCall_ConcurrentCallsFetchOneToken(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	h.TokenDelay = 100 * time.Millisecond
	reg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(reg)
	c := newClient(t, h, nil, gateway.WithMetrics(metrics))

	var wg sync.WaitGroup
	for _, dt := range []document.Type{document.ResidentRegister, document.ResidentAbstract, document.LocalTaxCert, document.ResidentRegister} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Call(context.Background(), gateway.Request{DocumentType: dt, Name: "n", Identity: testIdentity})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.TokenCalls())
	for _, rec := range h.Requests() {
		assert.Equal(t, "Bearer tok-1", rec.Header.Get("Authorization"))
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenFetches.WithLabelValues("fetched")))
	// one series per distinct document type
	assert.Equal(t, 3, testutil.CollectAndCount(metrics.CallLatency, "rehabdocs_gateway_call_duration_seconds"))
}

func TestCall_DoesNotLogIdentity(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	h.Script("/v1/nps/status", fakes.Response{Body: map[string]any{"code": "E1", "message": "fail"}})
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c := newClient(t, h, nil, gateway.WithLogger(logger))

	_, _ = c.Call(context.Background(), gateway.Request{DocumentType: document.PensionCert, Name: "n", Identity: testIdentity})
	require.NotEmpty(t, hook.AllEntries())
	for _, e := range hook.AllEntries() {
		line, err := e.String()
		require.NoError(t, err)
		assert.NotContains(t, line, testIdentity)
		assert.NotContains(t, line, encryptedIdentity)
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()
	h := fakes.NewHyphen(t)
	d := newClient(t, h, nil).Diagnose(context.Background())
	assert.True(t, d.Reachable)
	assert.True(t, d.Authenticated)
	assert.True(t, d.TestMode)
	assert.Empty(t, d.Error)

	bad := fakes.NewHyphen(t)
	bad.TokenStatus = http.StatusForbidden
	d = newClient(t, bad, nil).Diagnose(context.Background())
	assert.True(t, d.Reachable)
	assert.False(t, d.Authenticated)
	assert.NotEmpty(t, d.Error)
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()
	cat := gateway.DefaultCatalog()
	assert.Len(t, cat.Types(), 11)
	for _, dt := range []document.Type{document.ResidentRegister, document.ResidentAbstract, document.LocalTaxCert,
		document.HealthInsuranceCert, document.PensionCert, document.IncomeCert, document.EmploymentCert} {
		assert.True(t, cat.AutoIssuable(dt), dt)
	}
	for _, dt := range []document.Type{document.VehicleRegister, document.RealEstateRegister,
		document.BusinessLicense, document.HealthInsurancePayment, document.BankStatement} {
		assert.False(t, cat.AutoIssuable(dt), dt)
	}
	d, ok := cat.Lookup(document.PensionCert)
	require.True(t, ok)
	assert.Equal(t, "0000", d.SuccessCode)
	assert.Equal(t, "연금산정용 가입내역확인서", d.Label)

	_, err := gateway.NewCatalog(d, d)
	require.Error(t, err)
	_, err = gateway.NewCatalog(gateway.Descriptor{Type: document.Other})
	require.Error(t, err)
}
