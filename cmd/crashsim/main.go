// crashsim replays a recorded sensor trace through the on-device pipeline and
// submits confirmed crashes to a running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trafficSOS/internal/auth"
	"trafficSOS/internal/device/detection"
	"trafficSOS/internal/device/dispatch"
	"trafficSOS/internal/device/gate"
	"trafficSOS/internal/device/replay"
	"trafficSOS/internal/domain"
	"trafficSOS/pkg/logger"
)

type fixedLocation struct{ fix domain.GeoPoint }

func (f fixedLocation) CurrentFix(context.Context) (domain.GeoPoint, error) { return f.fix, nil }
func (f fixedLocation) LastKnown() (domain.GeoPoint, bool)                  { return f.fix, true }

type fileProfile struct{ profile domain.MedicalProfile }

func (f fileProfile) Profile(context.Context) (domain.MedicalProfile, error) { return f.profile, nil }

type logSinks struct{ log *slog.Logger }

func (s logSinks) Broadcast(_ context.Context, r dispatch.Receipt) {
	s.log.Info("evidence broadcast", slog.String("accident_id", r.AccidentID), slog.String("status", string(r.Status)))
}

func (s logSinks) Handover(_ context.Context, env domain.Envelope[domain.SOSPayload], cause error) {
	body, _ := json.Marshal(env)
	s.log.Error("sos handed over for manual delivery", slog.Any("error", cause), slog.String("envelope", string(body)))
}

func main() {
	var (
		server   = flag.String("server", "http://localhost:8080", "SOS server base URL")
		keyPath  = flag.String("key", "", "PEM private key used to sign the device token")
		issuer   = flag.String("issuer", "traffic-sos", "token issuer")
		audience = flag.String("audience", "traffic-sos-api", "token audience")
		userID   = flag.String("user", "device-user", "user id of the simulated device owner")
		lat      = flag.Float64("lat", 55.7558, "latitude of the simulated fix")
		lng      = flag.Float64("lng", 37.6173, "longitude of the simulated fix")
		tracePth = flag.String("trace", "-", "JSON lines sensor trace, - for stdin")
		profile  = flag.String("profile", "", "optional medical profile JSON file")
		respond  = flag.String("respond", "none", "user response during countdown: none, cancel or send")
		ticks    = flag.Int("ticks", 15, "countdown ticks")
		pace     = flag.Duration("pace", 10*time.Millisecond, "delay between replayed samples")
	)
	flag.Parse()

	log := logger.SetupPrettySlog()
	if err := run(*server, *keyPath, *issuer, *audience, *userID, *lat, *lng, *tracePth, *profile, replay.Response(*respond), *ticks, *pace, log); err != nil {
		log.Error("crashsim failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(server, keyPath, issuer, audience, userID string, lat, lng float64, tracePath, profilePath string,
	respond replay.Response, ticks int, pace time.Duration, log *slog.Logger,
) error {
	switch respond {
	case replay.RespondNothing, replay.RespondCancel, replay.RespondSendNow:
	default:
		return fmt.Errorf("unknown response %q", respond)
	}
	if keyPath == "" {
		return fmt.Errorf("-key is required")
	}

	key, err := auth.LoadPrivateKey(keyPath)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenProvider(key, nil, issuer, audience, time.Hour)
	creds := auth.NewStaticCredentials(domain.Principal{UserID: userID, Role: domain.RoleUser}, tokens)

	var med domain.MedicalProfile
	if profilePath != "" {
		raw, err := os.ReadFile(profilePath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &med); err != nil {
			return fmt.Errorf("profile: %w", err)
		}
	}

	var in io.Reader = os.Stdin
	if tracePath != "-" {
		f, err := os.Open(tracePath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	sinks := logSinks{log: log}
	client := dispatch.New(dispatch.DefaultConfig(server), dispatch.Deps{
		Location:    fixedLocation{fix: domain.GeoPoint{Lat: lat, Lng: lng}},
		Profiles:    fileProfile{profile: med},
		Credentials: creds,
		Broadcaster: sinks,
		Handover:    sinks,
	}, log.With(slog.String("component", "dispatch")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := replay.Run(ctx, replay.Config{
		Detector: detection.DefaultConfig(),
		Gate:     gate.Config{Ticks: ticks, Tick: time.Second},
		Pace:     pace,
		Response: respond,
	}, in, client, log)

	log.Info("replay finished",
		slog.Int("samples", report.Samples),
		slog.Int("candidates", report.Candidates),
		slog.Int("cancelled", report.Cancelled),
		slog.Int("dispatched", len(report.Dispatched)),
		slog.Int("failed", len(report.Failed)),
	)
	for _, r := range report.Dispatched {
		fmt.Println(r.AccidentID)
	}
	return err
}
