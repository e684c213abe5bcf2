package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	governanceengine "governor/contexts/treasury-governance/governance-engine"
	governancehttp "governor/contexts/treasury-governance/governance-engine/transport/http"
	"governor/internal/platform/metrics"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func newTestServer() (*Server, governanceengine.Module) {
	module := governanceengine.NewInMemoryModule(governanceengine.InMemoryOptions{
		GovernanceToken: "GOV",
		Treasury:        "treasury",
		Quorum:          50,
	}, nil)
	module.Token.Mint("holder", 600)
	module.Token.Mint("treasury", 400)
	server := New(module, Options{
		JWTSecret:     testSecret,
		AdminAccounts: []string{"operator"},
		Metrics:       metrics.NewGovernance().Handler(),
		Health: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
	}, nil)
	return server, module
}

func bearer(t *testing.T, account string) string {
	t.Helper()
	token, err := IssueToken(testSecret, account, time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	return "Bearer " + token
}

func doRequest(server *Server, method string, path string, body string, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) governancehttp.ErrorResponse {
	t.Helper()
	var payload governancehttp.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func TestGovernanceMutationsRequireBearerToken(t *testing.T) {
	server, _ := newTestServer()
	body := `{"beneficiary":"b","amount":"100","duration_minutes":1}`

	rr := doRequest(server, http.MethodPost, "/v1/proposals", body, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/v1/proposals", body, "Bearer not-a-jwt")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed token, got %d", rr.Code)
	}

	forged, err := IssueToken([]byte("other-secret"), "holder", time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	rr = doRequest(server, http.MethodPost, "/v1/proposals", body, "Bearer "+forged)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", rr.Code)
	}

	expired, err := IssueToken(testSecret, "holder", -time.Minute)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	rr = doRequest(server, http.MethodPost, "/v1/proposals", body, "Bearer "+expired)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rr.Code)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "holder"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token failed: %v", err)
	}
	rr = doRequest(server, http.MethodPost, "/v1/proposals", body, "Bearer "+unsigned)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned token, got %d", rr.Code)
	}
}

func TestGovernanceHTTPLifecycle(t *testing.T) {
	server, module := newTestServer()
	auth := bearer(t, "holder")

	rr := doRequest(server, http.MethodPost, "/v1/proposals", `{"beneficiary":"b","amount":"100","duration_minutes":1}`, auth)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var proposal governancehttp.ProposalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &proposal); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if proposal.ProposalID != 1 || proposal.Amount != "100" || proposal.Payout != "none" {
		t.Fatalf("unexpected proposal: %+v", proposal)
	}

	rr = doRequest(server, http.MethodPost, "/v1/proposals/1/votes", `{"choice":"for"}`, auth)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var vote governancehttp.VoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &vote); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if vote.Account != "holder" || vote.ForWeight != 60 {
		t.Fatalf("expected vote by token subject with weight 60, got %+v", vote)
	}

	rr = doRequest(server, http.MethodPost, "/v1/proposals/1/votes", `{"choice":"against"}`, auth)
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "already_voted" {
		t.Fatalf("expected 409 already_voted, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, "/v1/proposals/1/tally?account=holder", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"has_voted":true`) {
		t.Fatalf("expected tally with has_voted, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodPost, "/v1/proposals/1/execute", "", bearer(t, "operator"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodPost, "/v1/proposals/1/execute", "", bearer(t, "operator"))
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "proposal_already_executed" {
		t.Fatalf("expected 409 proposal_already_executed, got %d body=%s", rr.Code, rr.Body.String())
	}
	if len(module.Token.Transfers()) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(module.Token.Transfers()))
	}

	rr = doRequest(server, http.MethodGet, "/v1/proposals/next-id", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"next_proposal_id":1`) {
		t.Fatalf("unexpected next-id response: %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodGet, "/v1/governance/config", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"quorum":50`) {
		t.Fatalf("unexpected config response: %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodGet, "/v1/clock", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"now":`) {
		t.Fatalf("unexpected clock response: %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestGovernanceErrorMapping(t *testing.T) {
	server, module := newTestServer()
	auth := bearer(t, "holder")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "zero amount", method: http.MethodPost, path: "/v1/proposals", body: `{"beneficiary":"b","amount":"0","duration_minutes":1}`, status: http.StatusBadRequest, code: "amount_should_not_be_zero"},
		{name: "zero duration", method: http.MethodPost, path: "/v1/proposals", body: `{"beneficiary":"b","amount":"5","duration_minutes":0}`, status: http.StatusBadRequest, code: "duration_error"},
		{name: "bad json", method: http.MethodPost, path: "/v1/proposals", body: `{`, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "unknown proposal", method: http.MethodGet, path: "/v1/proposals/99", status: http.StatusNotFound, code: "proposal_not_found"},
		{name: "bad id", method: http.MethodGet, path: "/v1/proposals/abc", status: http.StatusBadRequest, code: "invalid_proposal_id"},
		{name: "bad choice", method: http.MethodPost, path: "/v1/proposals/1/votes", body: `{"choice":"abstain"}`, status: http.StatusBadRequest, code: "invalid_input"},
		{name: "no votes", method: http.MethodPost, path: "/v1/proposals/1/execute", status: http.StatusUnprocessableEntity, code: "quorum_not_reached"},
	}

	rr := doRequest(server, http.MethodPost, "/v1/proposals", `{"beneficiary":"b","amount":"100","duration_minutes":1}`, auth)
	if rr.Code != http.StatusCreated {
		t.Fatalf("seed proposal failed: %d body=%s", rr.Code, rr.Body.String())
	}
	for _, tc := range cases {
		rr := doRequest(server, tc.method, tc.path, tc.body, auth)
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d body=%s", tc.name, tc.status, rr.Code, rr.Body.String())
		}
		if got := decodeError(t, rr).Code; got != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, got)
		}
	}

	module.Token.FailTransfer(errors.New("chain halted"))
	if rr := doRequest(server, http.MethodPost, "/v1/proposals/1/votes", `{"choice":"for"}`, auth); rr.Code != http.StatusOK {
		t.Fatalf("vote failed: %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodPost, "/v1/proposals/1/execute", "", auth)
	if rr.Code != http.StatusBadGateway || decodeError(t, rr).Code != "tx_failed" {
		t.Fatalf("expected 502 tx_failed, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, "/v1/admin/proposals/unpaid", "", bearer(t, "operator"))
	var unpaid governancehttp.ProposalListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &unpaid); err != nil {
		t.Fatalf("invalid json response: %v", err)
	}
	if rr.Code != http.StatusOK || len(unpaid.Items) != 1 || unpaid.Items[0].Payout != "failed" {
		t.Fatalf("expected one failed payout listed, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server, _ := newTestServer()
	rr := doRequest(server, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response: %d body=%s", rr.Code, rr.Body.String())
	}

	server.health["redis"] = func(context.Context) error { return errors.New("connection refused") }
	rr = doRequest(server, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "degraded") {
		t.Fatalf("expected degraded health, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(server, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("unexpected metrics response: %d", rr.Code)
	}
}

func TestHeaderCallerWithoutSecret(t *testing.T) {
	module := governanceengine.NewInMemoryModule(governanceengine.InMemoryOptions{GovernanceToken: "GOV", Treasury: "treasury"}, nil)
	server := New(module, Options{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/proposals", strings.NewReader(`{"beneficiary":"b","amount":"1","duration_minutes":1}`))
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-Id, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/proposals", strings.NewReader(`{"beneficiary":"b","amount":"1","duration_minutes":1}`))
	req.Header.Set("X-User-Id", "local-dev")
	rr = httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 with X-User-Id, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestAdminRoutesRequireOperatorAccount(t *testing.T) {
	server, _ := newTestServer()

	rr := doRequest(server, http.MethodGet, "/v1/admin/proposals/unpaid", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	rr = doRequest(server, http.MethodGet, "/v1/admin/proposals/unpaid", "", bearer(t, "holder"))
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Code != "forbidden" {
		t.Fatalf("expected 403 forbidden for token holder, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = doRequest(server, http.MethodGet, "/v1/admin/proposals/unpaid", "", bearer(t, "operator"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator, got %d body=%s", rr.Code, rr.Body.String())
	}

	module := governanceengine.NewInMemoryModule(governanceengine.InMemoryOptions{GovernanceToken: "GOV", Treasury: "treasury"}, nil)
	closed := New(module, Options{JWTSecret: testSecret}, nil)
	rr = doRequest(closed, http.MethodGet, "/v1/admin/proposals/unpaid", "", bearer(t, "operator"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when no operators are configured, got %d", rr.Code)
	}
}
