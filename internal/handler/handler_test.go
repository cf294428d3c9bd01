package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/marketplace-bff/internal/domain/auth"
	"github.com/xenking/marketplace-bff/internal/domain/bundle"
	"github.com/xenking/marketplace-bff/internal/domain/order"
)

// --- Mock Bundles ---

type mockBundles struct {
	result     *bundle.Result
	preview    *bundle.Preview
	entry      *bundle.Entry
	candidates []order.Order
	err        error

	gotAuth    auth.Context
	gotRequest bundle.Request
	gotRepair  bundle.RepairRequest
	gotIDs     []string
	gotOrderID string
	gotBundle  bundle.ID
}

func (m *mockBundles) Purchase(_ context.Context, ac auth.Context, req bundle.Request) (*bundle.Result, error) {
	m.gotAuth, m.gotRequest = ac, req
	return m.result, m.err
}

func (m *mockBundles) Preview(_ context.Context, ac auth.Context, ids []string) (*bundle.Preview, error) {
	m.gotAuth, m.gotIDs = ac, ids
	return m.preview, m.err
}

func (m *mockBundles) Repair(_ context.Context, ac auth.Context, req bundle.RepairRequest) (*bundle.Result, error) {
	m.gotAuth, m.gotRepair = ac, req
	return m.result, m.err
}

func (m *mockBundles) Candidates(_ context.Context, ac auth.Context, orderID string) ([]order.Order, error) {
	m.gotAuth, m.gotOrderID = ac, orderID
	return m.candidates, m.err
}

func (m *mockBundles) Latest(_ context.Context, id bundle.ID) (*bundle.Entry, error) {
	m.gotBundle = id
	return m.entry, m.err
}

// --- Helpers ---

func serve(t *testing.T, m *mockBundles, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	NewHandler(m).Routes(r)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]jx.Raw {
	t.Helper()
	out := map[string]jx.Raw{}
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		raw, err := d.Raw()
		out[key] = append(jx.Raw(nil), raw...)
		return err
	}))
	return out
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]jx.Raw {
	t.Helper()
	raw, ok := decodeBody(t, w)["data"]
	require.True(t, ok, "result has no data object")
	out := map[string]jx.Raw{}
	require.NoError(t, jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		v, err := d.Raw()
		out[key] = append(jx.Raw(nil), v...)
		return err
	}))
	return out
}

func result(outcome bundle.Outcome, updates ...bundle.UpdateResult) *bundle.Result {
	return &bundle.Result{
		Success:        outcome == bundle.OutcomeAllSucceeded,
		Message:        "done",
		Outcome:        outcome,
		BundleID:       "bundle_o1_o2",
		TrackingNumber: "1Z999",
		LabelURL:       "https://labels.example.com/1Z999.pdf",
		Cost:           decimal.RequireFromString("12.3"),
		Carrier:        "UPS",
		Service:        "Ground",
		AffectedOrders: []string{"o1", "o2"},
		Updates:        updates,
		Parcel:         bundle.Parcel{Weight: "16 oz", Dimensions: "10x6x5"},
	}
}

// --- Tests ---

func TestPurchaseBundleLabel_Outcomes(t *testing.T) {
	ok := bundle.UpdateResult{OrderID: "o1", Success: true}
	bad := bundle.UpdateResult{OrderID: "o2", Error: "update order o2: boom"}

	tests := []struct {
		name   string
		result *bundle.Result
		status int
	}{
		{name: "all succeeded", result: result(bundle.OutcomeAllSucceeded, ok, ok), status: http.StatusOK},
		{name: "partially succeeded", result: result(bundle.OutcomePartiallySucceeded, ok, bad), status: http.StatusMultiStatus},
		{name: "all failed", result: result(bundle.OutcomeAllFailed, bad, bad), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockBundles{result: tt.result}
			w := serve(t, m, http.MethodPost, "/api/bundles/labels",
				`{"orderIds":["o1","o2"],"rateId":"rate_1","service":"Ground","extra":{"a":1}}`)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, "tok", m.gotAuth.Token)
			assert.Equal(t, bundle.Request{OrderIDs: []string{"o1", "o2"}, RateID: "rate_1", Service: "Ground"}, m.gotRequest)

			body := decodeBody(t, w)
			assert.Equal(t, `"`+string(tt.result.Outcome)+`"`, body["outcome"].String())
			assert.Equal(t, `"done"`, body["message"].String())

			data := decodeData(t, w)
			assert.Equal(t, `"1Z999"`, data["trackingNumber"].String())
			assert.Equal(t, `"https://labels.example.com/1Z999.pdf"`, data["labelUrl"].String())
			assert.Equal(t, `"12.30"`, data["cost"].String())
			assert.Equal(t, `"UPS"`, data["carrier"].String())
			assert.Equal(t, `"Ground"`, data["service"].String())
			assert.Equal(t, `"16 oz"`, data["aggregatedWeight"].String())
			assert.Equal(t, `"10x6x5"`, data["aggregatedDimensions"].String())
			assert.Equal(t, `["o1","o2"]`, data["affectedOrders"].String())
		})
	}
}

func TestPurchaseBundleLabel_PartialBody(t *testing.T) {
	m := &mockBundles{result: result(bundle.OutcomePartiallySucceeded,
		bundle.UpdateResult{OrderID: "o1", Success: true},
		bundle.UpdateResult{OrderID: "o2", Error: "update order o2: boom"},
	)}
	w := serve(t, m, http.MethodPost, "/api/bundles/labels", `{"orderIds":["o1","o2"],"rateId":"r"}`)

	require.Equal(t, http.StatusMultiStatus, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "false", body["success"].String())
	assert.Equal(t, `["o2"]`, body["failedOrders"].String())
	assert.NotContains(t, body, "trackingNumber", "label fields live under data")
	assert.JSONEq(t,
		`[{"orderId":"o1","success":true},{"orderId":"o2","success":false,"error":"update order o2: boom"}]`,
		decodeData(t, w)["perOrderUpdateResults"].String())
}

func TestPurchaseBundleLabel_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		orderID string
		reason  string
	}{
		{name: "validation", err: &bundle.ValidationError{Field: "orderIds", Reason: "required"}, status: http.StatusBadRequest, reason: "invalid_request"},
		{name: "customer mismatch", err: &bundle.CustomerMismatchError{OrderID: "o2", CustomerID: "u2", Expected: "u1"}, status: http.StatusBadRequest, orderID: "o2", reason: "customer_mismatch"},
		{name: "address mismatch", err: &bundle.AddressMismatchError{OrderID: "o2"}, status: http.StatusBadRequest, orderID: "o2", reason: "address_mismatch"},
		{name: "missing address", err: &bundle.MissingAddressError{OrderID: "o1"}, status: http.StatusBadRequest, orderID: "o1", reason: "missing_address"},
		{name: "incompatible status", err: &bundle.IncompatibleStatusError{OrderID: "o1", Status: order.StatusShipped}, status: http.StatusBadRequest, orderID: "o1", reason: "incompatible_status"},
		{name: "not found", err: errors.Wrap(&order.NotFoundError{OrderID: "o3"}, "validate"), status: http.StatusNotFound, orderID: "o3", reason: "not_found"},
		{name: "unauthorized upstream", err: errors.Wrap(order.ErrUnauthorized, "GET /orders/o1"), status: http.StatusUnauthorized, reason: "unauthorized"},
		{name: "duplicate", err: &bundle.DuplicateBundleError{BundleID: "bundle_o1_o2", TrackingNumber: "1ZOLD"}, status: http.StatusConflict, reason: "duplicate"},
		{name: "label failed", err: &bundle.LabelPurchaseError{StatusCode: 422, Body: "rate expired"}, status: http.StatusInternalServerError, reason: "label_purchase_failed"},
		{name: "missing tracking", err: bundle.ErrMissingTrackingNumber, status: http.StatusInternalServerError, reason: "missing_tracking_number"},
		{name: "unknown", err: errors.New("secret detail"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockBundles{err: tt.err}
			w := serve(t, m, http.MethodPost, "/api/bundles/labels", `{"orderIds":["o1","o2"],"rateId":"r"}`)

			assert.Equal(t, tt.status, w.Code)
			body := decodeBody(t, w)
			if tt.reason != "" {
				assert.Equal(t, `"`+tt.reason+`"`, body["reason"].String())
			} else {
				assert.NotContains(t, body, "reason")
			}
			if tt.orderID != "" {
				assert.Equal(t, `"`+tt.orderID+`"`, body["orderId"].String())
			}
			assert.NotContains(t, w.Body.String(), "secret detail")
		})
	}
}

func TestPurchaseBundleLabel_DuplicateCarriesTracking(t *testing.T) {
	m := &mockBundles{err: &bundle.DuplicateBundleError{BundleID: "bundle_o1_o2", TrackingNumber: "1ZOLD"}}
	w := serve(t, m, http.MethodPost, "/api/bundles/labels", `{"orderIds":["o1","o2"],"rateId":"r"}`)

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, `"1ZOLD"`, decodeBody(t, w)["trackingNumber"].String())
}

func TestPurchaseBundleLabel_BadRequests(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header string
		status int
	}{
		{name: "no token", body: `{"orderIds":["o1"],"rateId":"r"}`, header: "", status: http.StatusUnauthorized},
		{name: "basic auth", body: `{"orderIds":["o1"],"rateId":"r"}`, header: "Basic Zm9vOmJhcg==", status: http.StatusUnauthorized},
		{name: "empty body", body: "", header: "Bearer tok", status: http.StatusBadRequest},
		{name: "malformed json", body: `{"orderIds":`, header: "Bearer tok", status: http.StatusBadRequest},
		{name: "ids not strings", body: `{"orderIds":[1,2],"rateId":"r"}`, header: "Bearer tok", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockBundles{result: result(bundle.OutcomeAllSucceeded)}
			r := mux.NewRouter()
			NewHandler(m).Routes(r)

			req := httptest.NewRequest(http.MethodPost, "/api/bundles/labels", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Empty(t, m.gotRequest.OrderIDs, "coordinator must not be called")
		})
	}
}

func TestPreviewBundle(t *testing.T) {
	m := &mockBundles{preview: &bundle.Preview{
		BundleID:   "bundle_o1_o2",
		CustomerID: "u1",
		OrderIDs:   []string{"o1", "o2"},
		Parcel:     bundle.Parcel{WeightOz: 16, Length: 10, Width: 6, Height: 5, Weight: "16 oz", Dimensions: "10x6x5"},
	}}
	w := serve(t, m, http.MethodPost, "/api/bundles/preview", `{"orderIds":["o1","o2"]}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"o1", "o2"}, m.gotIDs)
	body := decodeBody(t, w)
	assert.Equal(t, `"u1"`, body["customerId"].String())
	assert.JSONEq(t, `{"weightOz":16,"length":10,"width":6,"height":5}`, body["parcel"].String())
}

func TestRepairBundle(t *testing.T) {
	m := &mockBundles{result: result(bundle.OutcomeAllSucceeded, bundle.UpdateResult{OrderID: "o1", Success: true})}
	w := serve(t, m, http.MethodPost, "/api/bundles/repair", `{"orderIds":["o1","o2"],"trackingNumber":null,"labelUrl":"x"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bundle.RepairRequest{OrderIDs: []string{"o1", "o2"}, LabelURL: "x"}, m.gotRepair)

	m = &mockBundles{err: errors.Wrap(bundle.ErrEntryNotFound, "resolve label")}
	w = serve(t, m, http.MethodPost, "/api/bundles/repair", `{"orderIds":["o1"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBundle(t *testing.T) {
	m := &mockBundles{entry: &bundle.Entry{
		ID:             "e1",
		BundleID:       "bundle_o1_o2",
		TrackingNumber: "1Z999",
		Cost:           decimal.RequireFromString("5"),
		OrderIDs:       []string{"o1", "o2"},
		Outcome:        bundle.OutcomeAllFailed,
		FailedOrders:   []string{"o1", "o2"},
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	w := serve(t, m, http.MethodGet, "/api/bundles/bundle_o1_o2", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, bundle.ID("bundle_o1_o2"), m.gotBundle)
	body := decodeBody(t, w)
	assert.Equal(t, `"5.00"`, body["cost"].String())
	assert.Equal(t, `"all_failed"`, body["outcome"].String())
	assert.Equal(t, `"2026-03-01T12:00:00Z"`, body["createdAt"].String())

	m = &mockBundles{err: bundle.ErrEntryNotFound}
	w = serve(t, m, http.MethodGet, "/api/bundles/bundle_x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListBundleCandidates(t *testing.T) {
	m := &mockBundles{candidates: []order.Order{
		{ID: "o2", Customer: order.Customer{ID: "u1"}, Status: order.StatusPending},
	}}
	w := serve(t, m, http.MethodGet, "/api/orders/o1/bundle-candidates", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "o1", m.gotOrderID)
	assert.JSONEq(t,
		`{"orderId":"o1","candidates":[{"id":"o2","customerId":"u1","status":"pending","itemCount":0}]}`,
		w.Body.String())
}

func TestRoutes_Unknown(t *testing.T) {
	w := serve(t, &mockBundles{}, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, &mockBundles{}, http.MethodDelete, "/api/bundles/labels", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
