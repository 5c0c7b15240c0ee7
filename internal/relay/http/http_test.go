package http_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"

	httpapi "github.com/aussiebroadwan/saathi/internal/relay/http"
	"github.com/aussiebroadwan/saathi/internal/relay/metrics"
	"github.com/aussiebroadwan/saathi/internal/relay/registry"
	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/internal/relay/store/drivers/sqlite"
	"github.com/aussiebroadwan/saathi/pkg/cryptox"
	"github.com/aussiebroadwan/saathi/pkg/httpx"
	"github.com/aussiebroadwan/saathi/pkg/jwtx"
	"github.com/aussiebroadwan/saathi/pkg/relaysdk"
	"github.com/aussiebroadwan/saathi/pkg/slogx"
)

const testPassword = "correct horse battery"

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "relay-http")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	// Every test client shares 127.0.0.1.
	relaxed := httpx.RateLimitConfig{RequestsPerWindow: 10000, Window: time.Minute, Burst: 10000}
	httpx.AuthLimit = relaxed
	httpx.APILimit = relaxed

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testServer struct {
	URL      string
	client   *relaysdk.Client
	store    *sqlite.Store
	registry *registry.Registry
}

type serverOption func(r *httpapi.Router)

func withFrameLimit(n int) serverOption {
	return func(r *httpapi.Router) { r.MaxFramesPerSecond = n }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "relay.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: "saathi-test", NumKeys: 1})
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	reg := registry.New()

	router := httpapi.NewRouter(km.KeySet, km.Verifier, "test", st, slogx.Discard())
	router.Registry = reg
	router.Metrics = m
	router.HierarchyService = &service.HierarchyService{Store: st}
	router.TokenService = &service.TokenService{KeyManager: km, Store: st, Issuer: "saathi-test"}
	router.MessageService = &service.MessageService{Store: st}
	router.Relay = service.NewRelay(st, reg, m)
	router.Lifecycle = &service.Lifecycle{Store: st, Registry: reg, Metrics: m}
	router.MetricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	for _, opt := range opts {
		opt(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{
		URL:      srv.URL,
		client:   relaysdk.NewClient(srv.URL),
		store:    st,
		registry: reg,
	}
}

func (s *testServer) register(t *testing.T, username, role, code, state, district string) *relaysdk.Session {
	t.Helper()

	sess, err := s.client.Register(t.Context(), relaysdk.RegisterRequest{
		Username:       username,
		Email:          username + "@example.com",
		Password:       testPassword,
		Role:           role,
		InvitationCode: code,
		State:          state,
		District:       district,
	})
	require.NoError(t, err)
	return sess
}

type tree struct {
	admin, state, district, member, agent *relaysdk.Session
}

// buildTree registers one user per role along a single referral chain.
func (s *testServer) buildTree(t *testing.T) tree {
	t.Helper()

	var tr tree
	tr.admin = s.register(t, "admin", "Admin", "", "", "")
	tr.state = s.register(t, "statepartner", "StatePartner", tr.admin.User().InvitationCode, "KA", "")
	tr.district = s.register(t, "districtpartner", "DistrictPartner", tr.state.User().InvitationCode, "", "BLR")
	tr.member = s.register(t, "member", "Member", tr.district.User().InvitationCode, "", "")
	tr.agent = s.register(t, "agent", "Agent", tr.district.User().InvitationCode, "", "")
	return tr
}

// connect opens a websocket session and waits until the server has
// registered it.
func connect(t *testing.T, sess *relaysdk.Session) *relaysdk.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	conn, err := sess.Connect(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	reqID, err := conn.Send(relaysdk.FrameJoinGroup, relaysdk.GroupPayload{UserID: sess.User().ID})
	require.NoError(t, err)
	f := receive(t, conn)
	require.Equal(t, relaysdk.FrameAck, f.Type)
	require.Equal(t, reqID, f.RequestID)
	return conn
}

func receive(t *testing.T, conn *relaysdk.Conn) relaysdk.Frame {
	t.Helper()

	f, err := conn.Receive(5 * time.Second)
	require.NoError(t, err)
	return f
}
