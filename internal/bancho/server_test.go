package bancho

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opsu/bancho/internal/authsvc"
	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/chat"
	"github.com/opsu/bancho/internal/dispatch"
	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/metrics"
	"github.com/opsu/bancho/internal/queue"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
)

type memRepo map[string]lifecycle.UserRecord

func (m memRepo) ByUsername(name string) (lifecycle.UserRecord, bool) {
	u, ok := m[name]
	return u, ok
}

type harness struct {
	lc *lifecycle.Lifecycle
	ts *httptest.Server
}

func newHarness(t *testing.T, users memRepo) *harness {
	t.Helper()

	verifier := &authsvc.BcryptVerifier{Cost: 4}
	for name, u := range users {
		h, err := verifier.Hash(u.PasswordHash)
		if err != nil {
			t.Fatalf("hash password for %s: %v", name, err)
		}
		u.PasswordHash = h
		users[name] = u
	}

	registry := chat.NewRegistry()
	registry.Create(chat.NewChannel("#osu", "Main channel", 0, 0, true, false))

	lc := &lifecycle.Lifecycle{
		Sessions:      session.NewStore(),
		Channels:      registry,
		Verifier:      verifier,
		Signer:        authsvc.NewSignatureService([]byte("test-key")),
		Users:         users,
		Retry:         lifecycle.NewRetryCache(time.Minute),
		Notify:        queue.NewBus(),
		LoginEnabled:  true,
		RetryMax:      5,
		QueueCapacity: 256,
	}

	d := dispatch.New()
	dispatch.Register(d)
	svc := &dispatch.Services{
		Sessions: lc.Sessions,
		Channels: lc.Channels,
		Policy:   chat.MessagePolicy{MaxLength: 2048},
		Logout:   lc.Logout,
	}

	srv := New(lc, d, svc, metrics.NewCollector(nil), nil)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return &harness{lc: lc, ts: ts}
}

func loginBody(username, password string, onlyFriendDMs bool) string {
	pm := "0"
	if onlyFriendDMs {
		pm = "1"
	}
	return fmt.Sprintf("%s\n%s\n20210101|8|1|a:b:c:d:e|%s\n", username, password, pm)
}

// login performs the tokenless POST / and returns the response.
func (h *harness) login(t *testing.T, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(h.ts.URL+"/", "application/octet-stream", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read login response: %v", err)
	}
	return resp, raw
}

// poll POSTs inbound packet bytes under token and returns the outbound bytes.
func (h *harness) poll(t *testing.T, token string, inbound []byte) []byte {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.ts.URL+"/", bytes.NewReader(inbound))
	if err != nil {
		t.Fatalf("new poll request: %v", err)
	}
	req.Header.Set(HeaderOsuToken, token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("poll request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll status = %d, want 200", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read poll response: %v", err)
	}
	return raw
}

func mustReadAll(t *testing.T, data []byte) []wire.Packet {
	t.Helper()
	pkts, err := wire.ReadAll(data)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return pkts
}

func kindsOf(pkts []wire.Packet) []byte {
	out := make([]byte, len(pkts))
	for i, p := range pkts {
		out[i] = p.Kind
	}
	return out
}

func aliceAndBob() memRepo {
	return memRepo{
		"alice": {UserID: 1000, Username: "alice", PasswordHash: "hunter2", Privileges: session.PrivilegeNormal},
		"bob":   {UserID: 2000, Username: "bob", PasswordHash: "letmein", Privileges: session.PrivilegeNormal},
	}
}

func TestLoginThenPoll(t *testing.T) {
	h := newHarness(t, aliceAndBob())

	resp, body := h.login(t, loginBody("alice", "hunter2", false))
	token := resp.Header.Get(HeaderChoToken)
	if token == "" || token == tokenLoginFailed || token == tokenLoginRefused {
		t.Fatalf("cho-token = %q, want a session token", token)
	}
	if got := resp.Header.Get(HeaderChoProtocol); got != "19" {
		t.Errorf("cho-protocol = %q, want 19", got)
	}

	pkts := mustReadAll(t, body)
	if len(pkts) < 4 {
		t.Fatalf("login bundle has %d packets, want at least 4 (kinds %v)", len(pkts), kindsOf(pkts))
	}
	if pkts[0].Kind != packets.KindProtocolVersion {
		t.Errorf("packet 0 kind = %d, want protocol-version", pkts[0].Kind)
	}
	ver, err := wire.NewPayloadReader(pkts[0].Payload).I32()
	if err != nil || ver != 19 {
		t.Errorf("protocol version = %d (%v), want 19", ver, err)
	}
	if pkts[1].Kind != packets.KindLoginReply {
		t.Errorf("packet 1 kind = %d, want login-reply", pkts[1].Kind)
	}
	uid, err := wire.NewPayloadReader(pkts[1].Payload).I32()
	if err != nil || uid != 1000 {
		t.Errorf("login-reply = %d (%v), want alice's id 1000", uid, err)
	}
	if pkts[2].Kind != packets.KindBanchoPrivileges {
		t.Errorf("packet 2 kind = %d, want bancho-privileges", pkts[2].Kind)
	}
	foundNotification := false
	for _, p := range pkts {
		if p.Kind == packets.KindNotification {
			foundNotification = true
		}
	}
	if !foundNotification {
		t.Error("login bundle missing a notification packet")
	}
	if h.lc.Sessions.Len() != 1 {
		t.Errorf("store len = %d, want 1", h.lc.Sessions.Len())
	}

	// An empty poll with the fresh token succeeds (whatever fan-out is
	// pending drains without error).
	h.poll(t, token, nil)
}

func TestLoginFailedHeaders(t *testing.T) {
	h := newHarness(t, aliceAndBob())

	resp, body := h.login(t, loginBody("alice", "wrong-password", false))
	if got := resp.Header.Get(HeaderChoToken); got != tokenLoginFailed {
		t.Errorf("cho-token = %q, want %q", got, tokenLoginFailed)
	}
	pkts := mustReadAll(t, body)
	if len(pkts) == 0 || pkts[0].Kind != packets.KindLoginReply {
		t.Fatalf("expected a login-reply packet, got kinds %v", kindsOf(pkts))
	}
	code, _ := wire.NewPayloadReader(pkts[0].Payload).I32()
	if code != int32(packets.LoginInvalidCredentials) {
		t.Errorf("login-reply code = %d, want %d", code, packets.LoginInvalidCredentials)
	}
	if h.lc.Sessions.Len() != 0 {
		t.Error("failed login must not create a session")
	}
}

func TestLoginRefusedWhenDisabled(t *testing.T) {
	h := newHarness(t, aliceAndBob())
	h.lc.LoginEnabled = false

	resp, _ := h.login(t, loginBody("alice", "hunter2", false))
	if got := resp.Header.Get(HeaderChoToken); got != tokenLoginRefused {
		t.Errorf("cho-token = %q, want %q", got, tokenLoginRefused)
	}
}

func TestDisplacement(t *testing.T) {
	h := newHarness(t, aliceAndBob())

	respBob, _ := h.login(t, loginBody("bob", "letmein", false))
	bobToken := respBob.Header.Get(HeaderChoToken)
	h.poll(t, bobToken, nil) // drain bob's login-time fan-out

	resp1, _ := h.login(t, loginBody("alice", "hunter2", false))
	t1 := resp1.Header.Get(HeaderChoToken)
	resp2, _ := h.login(t, loginBody("alice", "hunter2", false))
	t2 := resp2.Header.Get(HeaderChoToken)
	if t1 == t2 {
		t.Fatal("displacement should mint a new token")
	}

	// The displaced token is rejected and answered with a login-reply.
	body := h.poll(t, t1, nil)
	pkts := mustReadAll(t, body)
	if len(pkts) != 1 || pkts[0].Kind != packets.KindLoginReply {
		t.Fatalf("stale-token poll kinds = %v, want a single login-reply", kindsOf(pkts))
	}
	code, _ := wire.NewPayloadReader(pkts[0].Payload).I32()
	if code != int32(packets.LoginInvalidCredentials) {
		t.Errorf("stale-token login-reply code = %d, want %d", code, packets.LoginInvalidCredentials)
	}

	// Bob saw exactly one user-logout for alice.
	logouts := 0
	for _, p := range mustReadAll(t, h.poll(t, bobToken, nil)) {
		if p.Kind != packets.KindUserLogout {
			continue
		}
		uid, _ := wire.NewPayloadReader(p.Payload).I32()
		if uid == 1000 {
			logouts++
		}
	}
	if logouts != 1 {
		t.Errorf("bob saw %d user-logout(alice) packets, want exactly 1", logouts)
	}
}

func publicMessageFrame(t *testing.T, body, target string) []byte {
	t.Helper()
	p := wire.NewPayloadWriter().String(body).String(target)
	if p.Err() != nil {
		t.Fatalf("encode message payload: %v", p.Err())
	}
	w := wire.NewWriter()
	w.WritePacket(packets.KindSendPublicMessage, p.Bytes())
	return w.Bytes()
}

func TestPublicMessage(t *testing.T) {
	h := newHarness(t, aliceAndBob())

	respA, _ := h.login(t, loginBody("alice", "hunter2", false))
	respB, _ := h.login(t, loginBody("bob", "letmein", false))
	aliceToken := respA.Header.Get(HeaderChoToken)
	bobToken := respB.Header.Get(HeaderChoToken)
	h.poll(t, aliceToken, nil)
	h.poll(t, bobToken, nil)

	h.poll(t, aliceToken, publicMessageFrame(t, "hi bob", "#osu"))

	found := false
	for _, p := range mustReadAll(t, h.poll(t, bobToken, nil)) {
		if p.Kind != packets.KindSendMessage {
			continue
		}
		m, err := packets.DecodeSendMessage(p.Payload)
		if err != nil {
			t.Fatalf("decode send-message: %v", err)
		}
		if m.Sender != "alice" || m.SenderID != 1000 || m.Body != "hi bob" || m.Target != "#osu" {
			t.Errorf("unexpected message %+v", m)
		}
		found = true
	}
	if !found {
		t.Fatal("bob's poll should contain alice's channel message")
	}

	// No echo: alice's own poll carries no copy.
	for _, p := range mustReadAll(t, h.poll(t, aliceToken, nil)) {
		if p.Kind == packets.KindSendMessage {
			t.Error("alice received an echo of her own message")
		}
	}
}

func privateMessageFrame(t *testing.T, body, target string) []byte {
	t.Helper()
	p := wire.NewPayloadWriter().String(body).String(target)
	if p.Err() != nil {
		t.Fatalf("encode message payload: %v", p.Err())
	}
	w := wire.NewWriter()
	w.WritePacket(packets.KindSendPrivateMessage, p.Bytes())
	return w.Bytes()
}

func TestPrivateMessageBlockedByDMPolicy(t *testing.T) {
	h := newHarness(t, aliceAndBob())

	respA, _ := h.login(t, loginBody("alice", "hunter2", false))
	respB, _ := h.login(t, loginBody("bob", "letmein", true)) // only-friend DMs
	aliceToken := respA.Header.Get(HeaderChoToken)
	bobToken := respB.Header.Get(HeaderChoToken)
	h.poll(t, aliceToken, nil)
	h.poll(t, bobToken, nil)

	// The block notice is enqueued to alice while her sending poll is being
	// handled, so that same poll's response carries it.
	sent := h.poll(t, aliceToken, privateMessageFrame(t, "hey", "bob"))

	for _, p := range mustReadAll(t, h.poll(t, bobToken, nil)) {
		if p.Kind == packets.KindSendMessage {
			t.Error("bob should not receive a DM from a non-friend")
		}
	}

	blocked := false
	for _, p := range mustReadAll(t, sent) {
		if p.Kind != packets.KindUserDMBlocked {
			continue
		}
		target, err := wire.NewPayloadReader(p.Payload).String()
		if err != nil || target != "bob" {
			t.Errorf("user-dm-blocked target = %q (%v), want bob", target, err)
		}
		blocked = true
	}
	if !blocked {
		t.Error("alice should receive a user-dm-blocked notification")
	}
}

func TestNotifyBusBroadcastDeliveredOnce(t *testing.T) {
	h := newHarness(t, aliceAndBob())

	respA, _ := h.login(t, loginBody("alice", "hunter2", false))
	respB, _ := h.login(t, loginBody("bob", "letmein", false))
	aliceToken := respA.Header.Get(HeaderChoToken)
	bobToken := respB.Header.Get(HeaderChoToken)
	h.poll(t, aliceToken, nil)
	h.poll(t, bobToken, nil)

	w := wire.NewWriter()
	packets.EncodeNotification(w, "server restarting soon")
	h.lc.BroadcastPackets(w.Bytes())

	for _, token := range []string{aliceToken, bobToken} {
		seen := 0
		for _, p := range mustReadAll(t, h.poll(t, token, nil)) {
			if p.Kind == packets.KindNotification {
				seen++
			}
		}
		if seen != 1 {
			t.Errorf("poll drained %d notifications, want exactly 1", seen)
		}
		// The cursor advanced: a second poll replays nothing.
		for _, p := range mustReadAll(t, h.poll(t, token, nil)) {
			if p.Kind == packets.KindNotification {
				t.Error("notification replayed on a second poll")
			}
		}
	}
}

func TestPollWithGarbageToken(t *testing.T) {
	h := newHarness(t, aliceAndBob())

	body := h.poll(t, "not-a-real-token", nil)
	pkts := mustReadAll(t, body)
	if len(pkts) != 1 || pkts[0].Kind != packets.KindLoginReply {
		t.Fatalf("garbage-token poll kinds = %v, want a single login-reply", kindsOf(pkts))
	}
}

func TestStatusPage(t *testing.T) {
	h := newHarness(t, aliceAndBob())
	h.login(t, loginBody("alice", "hunter2", false))

	resp, err := http.Get(h.ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "players online: 1") {
		t.Errorf("status page should report one player online, got: %s", raw)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, aliceAndBob())
	h.login(t, loginBody("alice", "hunter2", false))

	resp, err := http.Get(h.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `bancho_logins_total{result="success"} 1`) {
		t.Errorf("metrics exposition missing login counter, got: %s", raw)
	}
}

func TestParseLoginBody(t *testing.T) {
	req, err := parseLoginBody([]byte("alice\nsecret\n20210101|-5|1|a:b:c:d:e|1\n"))
	if err != nil {
		t.Fatalf("parseLoginBody: %v", err)
	}
	if req.Username != "alice" || req.PasswordHash != "secret" {
		t.Errorf("unexpected credentials %q/%q", req.Username, req.PasswordHash)
	}
	if req.ClientVersion != "20210101" || req.UTCOffset != -5 || !req.DisplayCity || !req.OnlyFriendDMs {
		t.Errorf("unexpected client fields: %+v", req)
	}
	if req.ClientHashes != "a:b:c:d:e" {
		t.Errorf("client hashes = %q", req.ClientHashes)
	}

	for _, bad := range []string{"", "alice", "alice\npw\nnot-enough-fields", "alice\npw\nv|x|1|h|0"} {
		if _, err := parseLoginBody([]byte(bad)); err == nil {
			t.Errorf("parseLoginBody(%q) should fail", bad)
		}
	}
}
