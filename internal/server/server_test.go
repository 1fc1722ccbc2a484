package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"launchline/internal/config"
	"launchline/internal/db"
	"launchline/internal/domain"
	"launchline/internal/engine"
	"launchline/internal/migrate"
	"launchline/internal/repo"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("store-1")
	cfg.Store.Kind = "factory"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitStore(context.Background(), "store-1", "factory", "", "tester"); err != nil {
		t.Fatalf("init store: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Repo:   e.Repo,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createMember(t *testing.T, srv *testServer, name string) MemberResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/stores/store-1/members", map[string]any{
		"name": name,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create member: %d %s", res.StatusCode, string(data))
	}
	var m MemberResponse
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal member: %v", err)
	}
	return m
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stores", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stores", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}

	claims := jwt.RegisteredClaims{
		Subject:   "jwt-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/stores", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	secret := "llk_0011223344556677"
	err := srv.Repo.InsertAPIKey(context.Background(), nil, domain.APIKey{
		ID:        "key-1",
		ActorID:   "ci-bot",
		Name:      "ci",
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/stores", nil, map[string]string{"X-Api-Key": secret})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with api key, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stores", nil, map[string]string{"X-Api-Key": "llk_wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown key, got %d", res.StatusCode)
	}
}

func TestAssetLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	m := createMember(t, srv, "Li Wen")
	if m.CreditScore != 100 {
		t.Fatalf("expected starting score 100, got %d", m.CreditScore)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/stores/store-1/assets", map[string]any{
		"title":    "Ceramic pour-over kettle",
		"strategy": "sprint3",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create asset: %d %s", res.StatusCode, string(data))
	}
	var asset AssetResponse
	if err := json.Unmarshal(data, &asset); err != nil {
		t.Fatalf("unmarshal asset: %v", err)
	}
	if asset.Status != "pending" {
		t.Fatalf("expected pending asset, got %s", asset.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assets/"+asset.ID+"/claim", map[string]any{
		"member_id": m.ID,
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("claim: %d %s", res.StatusCode, string(data))
	}

	for i := 0; i < 3; i++ {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assets/"+asset.ID+"/evidence", map[string]any{
			"day":        1,
			"task_index": i,
			"images":     []string{fmt.Sprintf("proof-%d.png", i)},
		}, actorHeader)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("evidence %d: %d %s", i, res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assets/"+asset.ID+"/advance", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance: %d %s", res.StatusCode, string(data))
	}
	var advanced AssetResponse
	if err := json.Unmarshal(data, &advanced); err != nil {
		t.Fatalf("unmarshal advanced: %v", err)
	}
	if advanced.DayIndex != 2 {
		t.Fatalf("expected day 2, got %d", advanced.DayIndex)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/members/"+m.ID+"/credits", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("credits: %d %s", res.StatusCode, string(data))
	}
	var records []CreditRecordResponse
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unmarshal credits: %v", err)
	}
	// pool claim + 3 tasks + day completion
	if len(records) != 5 {
		t.Fatalf("expected 5 ledger rows, got %d: %s", len(records), string(data))
	}
}

func TestAdvanceBlockedWithoutEvidence(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	m := createMember(t, srv, "Blocked")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/stores/store-1/assets", map[string]any{
		"title":    "Unproven listing",
		"strategy": "sprint3",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create asset: %d %s", res.StatusCode, string(data))
	}
	var asset AssetResponse
	_ = json.Unmarshal(data, &asset)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assets/"+asset.ID+"/claim", map[string]any{"member_id": m.ID}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("claim: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assets/"+asset.ID+"/advance", nil, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 gating, got %d %s", res.StatusCode, string(data))
	}
	// force skips the gate
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assets/"+asset.ID+"/advance?force=true", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forced advance: %d %s", res.StatusCode, string(data))
	}
}

func TestClaimBelowFloorForbidden(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	m := createMember(t, srv, "Shaky")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/members/"+m.ID+"/credits/adjust", map[string]any{
		"change": -50,
		"reason": "repeated policy violations",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("adjust: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/stores/store-1/assets", map[string]any{
		"title": "Tempting listing",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create asset: %d %s", res.StatusCode, string(data))
	}
	var asset AssetResponse
	_ = json.Unmarshal(data, &asset)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assets/"+asset.ID+"/claim", map[string]any{"member_id": m.ID}, actorHeader)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 below claim floor, got %d %s", res.StatusCode, string(data))
	}
}
