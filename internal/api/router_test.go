package api_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trafficSOS/internal/api"
	"trafficSOS/internal/api/handlers/http/admin"
	"trafficSOS/internal/api/handlers/http/sos"
	"trafficSOS/internal/api/handlers/http/system"
	"trafficSOS/internal/auth"
	"trafficSOS/internal/config"
	"trafficSOS/internal/device/dispatch"
	"trafficSOS/internal/domain"
	"trafficSOS/internal/fanout"
	"trafficSOS/internal/observability"
	"trafficSOS/internal/revalidator"
	"trafficSOS/internal/service"
	"trafficSOS/internal/storage/memory"
	"trafficSOS/pkg/e"
)

type stack struct {
	srv    *httptest.Server
	tokens *auth.TokenProvider
	hub    *fanout.Hub
	store  *memory.Store
}

func newStack(t *testing.T) *stack {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	tokens := auth.NewTokenProvider(key, nil, "traffic-sos", "traffic-sos-api", time.Minute)
	policy, err := auth.NewPolicy(ctx, "")
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("collector: %v", err)
	}

	store := memory.NewStore()
	queue := fanout.NewMemoryQueue(64)
	hub := fanout.NewHub()

	manager := service.NewLifecycleManager(logger, service.LifecycleConfig{Env: "dev", Retention: 24 * time.Hour, SweepInterval: time.Hour},
		store, queue, revalidator.New(revalidator.DefaultThresholds()),
		service.WithAuthorizer(policy), service.WithRecorder(metrics))

	dispatcher := fanout.NewDispatcher(logger, fanout.Config{Workers: 1, PollTimeout: 20 * time.Millisecond},
		queue, []fanout.Broker{hub}, fanout.WithDeliveryRecorder(metrics))
	go dispatcher.Run(ctx)

	cfg := &config.Config{Http: config.HttpConfig{RateLimitRPS: 100, RateLimitBurst: 100}}
	router := api.InitRouter(ctx, cfg, api.Handlers{
		SOS:      sos.NewHandler(logger, "dev", manager, hub),
		Admin:    admin.NewHandler(logger, service.NewStatsService(store, policy)),
		System:   system.NewHandler(logger, map[string]system.Pinger{"store": manager}),
		Verifier: tokens,
		Metrics:  metrics,
	}, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &stack{srv: srv, tokens: tokens, hub: hub, store: store}
}

func (s *stack) call(t *testing.T, p domain.Principal, method, path, body string) (int, []byte) {
	t.Helper()

	token, _, err := s.tokens.Issue(p)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

type fixedLocation struct{ p domain.GeoPoint }

func (f fixedLocation) CurrentFix(context.Context) (domain.GeoPoint, error) { return f.p, nil }
func (f fixedLocation) LastKnown() (domain.GeoPoint, bool)                 { return f.p, true }

type fixedProfile struct{ p domain.MedicalProfile }

func (f fixedProfile) Profile(context.Context) (domain.MedicalProfile, error) { return f.p, nil }

type handovers struct{ causes []error }

func (h *handovers) Handover(_ context.Context, _ domain.Envelope[domain.SOSPayload], cause error) {
	h.causes = append(h.causes, cause)
}

var (
	victim    = domain.Principal{UserID: "victim-1", Role: domain.RoleUser}
	responder = domain.Principal{UserID: "amb-7", Role: domain.RoleResponder}
	operator  = domain.Principal{UserID: "op-1", Role: domain.RoleOperator}
)

func scenarioAMetrics() domain.CrashMetrics {
	return domain.CrashMetrics{
		GForce: 9.2, SpeedBefore: 45, SpeedAfter: 0, MLConfidence: 0.98,
		CrashType: domain.CrashConfirmed, RolloverDetected: true,
	}
}

func newDeviceClient(s *stack, loc domain.GeoPoint, profile domain.MedicalProfile, h *handovers) *dispatch.Client {
	cfg := dispatch.DefaultConfig(s.srv.URL)
	cfg.Backoff = time.Millisecond
	return dispatch.New(cfg, dispatch.Deps{
		Location:    fixedLocation{loc},
		Profiles:    fixedProfile{profile},
		Credentials: auth.NewStaticCredentials(victim, s.tokens),
		Handover:    h,
		HTTP:        s.srv.Client(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRoundTrip_DeviceEnvelopeToCaseRecord(t *testing.T) {
	s := newStack(t)

	speed := 12.5
	loc := domain.GeoPoint{Lat: 18.5204, Lng: 73.8567, Speed: &speed}
	profile := domain.MedicalProfile{
		BloodType:         "AB-",
		Allergies:         []string{"penicillin"},
		EmergencyContacts: []domain.EmergencyContact{{Name: "Asha", Phone: "+911234567890", Relation: "sister"}},
	}
	h := &handovers{}

	receipt, err := newDeviceClient(s, loc, profile, h).Dispatch(context.Background(), scenarioAMetrics())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !domain.ValidAccidentID(receipt.AccidentID) || receipt.Status != domain.StatusDetected {
		t.Fatalf("receipt = %+v", receipt)
	}

	code, body := s.call(t, responder, http.MethodGet, "/sos/"+receipt.AccidentID, "")
	if code != http.StatusOK {
		t.Fatalf("get: %d %s", code, body)
	}
	var rec domain.CaseRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}

	gotLoc, _ := json.Marshal(rec.Location)
	wantLoc, _ := json.Marshal(loc)
	gotMetrics, _ := json.Marshal(rec.Metrics)
	wantMetrics, _ := json.Marshal(scenarioAMetrics())
	gotProfile, _ := json.Marshal(rec.MedicalProfile)
	wantProfile, _ := json.Marshal(profile)
	if string(gotLoc) != string(wantLoc) || string(gotMetrics) != string(wantMetrics) || string(gotProfile) != string(wantProfile) {
		t.Fatalf("record differs from submitted envelope:\nloc %s / %s\nmetrics %s / %s\nprofile %s / %s",
			gotLoc, wantLoc, gotMetrics, wantMetrics, gotProfile, wantProfile)
	}
	if rec.VictimUserID != victim.UserID || len(h.causes) != 0 {
		t.Fatalf("victim = %q, handovers = %v", rec.VictimUserID, h.causes)
	}
}

func TestScenarioA_Accepted(t *testing.T) {
	s := newStack(t)
	sub := s.hub.Subscribe("case/", 8)
	defer sub.Close()

	env := domain.NewEnvelope("dev", victim, domain.SOSPayload{
		Location: domain.GeoPoint{Lat: 18.5204, Lng: 73.8567},
		Metrics:  scenarioAMetrics(),
	})
	b, _ := json.Marshal(env)

	code, body := s.call(t, victim, http.MethodPost, "/sos", string(b))
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}
	var created domain.Envelope[domain.SOSCreated]
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantPrefix := "ACC-" + time.Now().UTC().Format("2006") + "-"
	if !strings.HasPrefix(created.Payload.AccidentID, wantPrefix) || !domain.ValidAccidentID(created.Payload.AccidentID) {
		t.Fatalf("accident id = %q", created.Payload.AccidentID)
	}
	if created.Payload.Status != domain.StatusDetected {
		t.Fatalf("status = %s", created.Payload.Status)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != domain.EventCaseCreated || ev.Topic != domain.CaseTopic(created.Payload.AccidentID) {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("creation event not fanned out")
	}
}

func TestScenarioB_RejectedAtStage1(t *testing.T) {
	s := newStack(t)

	m := scenarioAMetrics()
	m.GForce = 1.0
	m.RolloverDetected = false
	env := domain.NewEnvelope("dev", victim, domain.SOSPayload{
		Location: domain.GeoPoint{Lat: 18.5204, Lng: 73.8567},
		Metrics:  m,
	})
	b, _ := json.Marshal(env)

	code, body := s.call(t, victim, http.MethodPost, "/sos", string(b))
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("create: %d %s", code, body)
	}
	var rej domain.SOSRejected
	if err := json.Unmarshal(body, &rej); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rej.Stage != 1 || rej.Reason == "" {
		t.Fatalf("rejection = %+v", rej)
	}
	if s.store.Len() != 0 {
		t.Fatalf("rejected submission stored")
	}
}

func TestScenarioB_DeviceSeesRejection(t *testing.T) {
	s := newStack(t)
	h := &handovers{}

	m := scenarioAMetrics()
	m.GForce = 1.0
	_, err := newDeviceClient(s, domain.GeoPoint{Lat: 1, Lng: 1}, domain.MedicalProfile{}, h).Dispatch(context.Background(), m)

	var rej *dispatch.RejectedError
	if !errors.As(err, &rej) || rej.Stage != 1 || !errors.Is(err, e.ErrRejected) {
		t.Fatalf("err = %v", err)
	}
	if len(h.causes) != 1 {
		t.Fatalf("handovers = %d, want 1", len(h.causes))
	}
}

func TestScenarioC_ResolveTwiceThenCancelConflicts(t *testing.T) {
	s := newStack(t)

	env := domain.NewEnvelope("dev", victim, domain.SOSPayload{
		Location: domain.GeoPoint{Lat: 18.5204, Lng: 73.8567},
		Metrics:  scenarioAMetrics(),
	})
	b, _ := json.Marshal(env)
	code, body := s.call(t, victim, http.MethodPost, "/sos", string(b))
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}
	var created domain.Envelope[domain.SOSCreated]
	_ = json.Unmarshal(body, &created)
	id := created.Payload.AccidentID

	var resolvedAt []time.Time
	for i := 0; i < 2; i++ {
		code, body := s.call(t, operator, http.MethodPatch, "/sos/"+id+"/status", `{"status":"RESOLVED"}`)
		if code != http.StatusOK {
			t.Fatalf("resolve %d: %d %s", i, code, body)
		}
		var rec domain.CaseRecord
		_ = json.Unmarshal(body, &rec)
		if rec.Status != domain.StatusResolved || rec.ResolvedAt == nil {
			t.Fatalf("resolve %d: %+v", i, rec)
		}
		resolvedAt = append(resolvedAt, *rec.ResolvedAt)
	}
	if !resolvedAt[0].Equal(resolvedAt[1]) {
		t.Fatalf("resolvedAt changed: %v -> %v", resolvedAt[0], resolvedAt[1])
	}

	if code, body := s.call(t, victim, http.MethodPatch, "/sos/"+id+"/cancel", ""); code != http.StatusConflict {
		t.Fatalf("cancel after resolve: %d %s", code, body)
	}
}

func TestRouter_AuthAndPolicy(t *testing.T) {
	s := newStack(t)

	resp, err := s.srv.Client().Get(s.srv.URL + "/sos")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: %d", resp.StatusCode)
	}

	if code, _ := s.call(t, victim, http.MethodGet, "/sos/ACC-bad", ""); code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", code)
	}
	if code, _ := s.call(t, victim, http.MethodGet, "/sos/ACC-2026-ZZZZZZ", ""); code != http.StatusNotFound {
		t.Fatalf("unknown id: %d", code)
	}

	env := domain.NewEnvelope("dev", victim, domain.SOSPayload{Location: domain.GeoPoint{Lat: 1, Lng: 1}, Metrics: scenarioAMetrics()})
	b, _ := json.Marshal(env)
	_, body := s.call(t, victim, http.MethodPost, "/sos", string(b))
	var created domain.Envelope[domain.SOSCreated]
	_ = json.Unmarshal(body, &created)

	if code, _ := s.call(t, victim, http.MethodPatch, "/sos/"+created.Payload.AccidentID+"/status", `{"status":"DISPATCHED"}`); code != http.StatusForbidden {
		t.Fatalf("victim setting status: %d", code)
	}
	code, body := s.call(t, responder, http.MethodPatch, "/sos/"+created.Payload.AccidentID+"/status", `{"status":"DISPATCHED"}`)
	if code != http.StatusOK {
		t.Fatalf("responder dispatch: %d %s", code, body)
	}
	var rec domain.CaseRecord
	_ = json.Unmarshal(body, &rec)
	if rec.ResponderID == nil || *rec.ResponderID != responder.UserID {
		t.Fatalf("responder not attached: %+v", rec)
	}
}

func TestRouter_SystemEndpoints(t *testing.T) {
	s := newStack(t)

	for path, want := range map[string]int{"/health": 200, "/ready": 200, "/metrics": 200} {
		resp, err := s.srv.Client().Get(s.srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("%s: %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestRouter_AdminStats(t *testing.T) {
	s := newStack(t)

	env := domain.NewEnvelope("dev", victim, domain.SOSPayload{Location: domain.GeoPoint{Lat: 1, Lng: 1}, Metrics: scenarioAMetrics()})
	b, _ := json.Marshal(env)
	if code, body := s.call(t, victim, http.MethodPost, "/sos", string(b)); code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}

	if code, _ := s.call(t, responder, http.MethodGet, "/admin/stats", ""); code != http.StatusForbidden {
		t.Fatalf("responder stats: %d", code)
	}

	code, body := s.call(t, operator, http.MethodGet, "/admin/stats?minutes=30", "")
	if code != http.StatusOK {
		t.Fatalf("operator stats: %d %s", code, body)
	}
	var stats domain.CaseStats
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Minutes != 30 || stats.Total != 1 || stats.UniqueVictims != 1 || stats.ByStatus[domain.StatusDetected] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
