package bancho

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/errs"
	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
	"github.com/opsu/bancho/internal/wire"
)

const contentTypeOctet = "application/octet-stream"

// handleBancho demultiplexes POST /: with no osu-token header the body is a
// login request, otherwise a stream of inbound packets for the session the
// token names (§6).
func (s *Server) handleBancho(c echo.Context) error {
	token := c.Request().Header.Get(HeaderOsuToken)
	if token == "" {
		return s.handleLogin(c)
	}
	return s.handlePoll(c, token)
}

func (s *Server) handleLogin(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read login body")
	}

	req, err := parseLoginBody(body)
	if err != nil {
		s.log.Warn("malformed login body", "remote", c.RealIP(), "error", err)
		s.countLogin("malformed")
		c.Response().Header().Set(HeaderChoToken, tokenLoginFailed)
		c.Response().Header().Set(HeaderChoProtocol, strconv.Itoa(lifecycle.ProtocolVersion))
		w := wire.NewWriter()
		packets.EncodeLoginReply(w, int32(packets.LoginInvalidCredentials))
		return c.Blob(http.StatusOK, contentTypeOctet, w.Bytes())
	}
	req.IP = c.RealIP()

	res := s.lc.Login(req)

	hdr := c.Response().Header()
	hdr.Set(HeaderChoProtocol, strconv.Itoa(lifecycle.ProtocolVersion))
	switch {
	case !res.Failed:
		hdr.Set(HeaderChoToken, res.Token)
		s.countLogin("success")
		s.log.Info("login", "user_id", res.Session.UserID, "username", res.Session.Username, "remote", req.IP)
	case res.Code == packets.LoginServerError:
		// Server-side refusals: login disabled, blocklisted address,
		// exhausted retry budget, internal failure.
		hdr.Set(HeaderChoToken, tokenLoginRefused)
		s.countLogin("refused")
	default:
		hdr.Set(HeaderChoToken, tokenLoginFailed)
		if res.Code == packets.LoginUserBanned {
			s.countLogin("banned")
		} else {
			s.countLogin("invalid_credentials")
		}
	}
	s.updateGauges()

	return c.Blob(http.StatusOK, contentTypeOctet, res.Packets)
}

// parseLoginBody decodes the newline-separated login request (§6):
//
//	<username>\n<password_hash>\n<osu_version>|<utc_offset>|<display_city>|<client_hashes>|<only_friend_pm>\n
func parseLoginBody(body []byte) (lifecycle.LoginRequest, error) {
	var req lifecycle.LoginRequest

	lines := strings.Split(string(body), "\n")
	if len(lines) < 3 {
		return req, fmt.Errorf("%w: want 3 lines, got %d", errs.ErrInvalidArgument, len(lines))
	}
	req.Username = lines[0]
	req.PasswordHash = lines[1]
	if req.Username == "" || req.PasswordHash == "" {
		return req, fmt.Errorf("%w: empty username or password", errs.ErrInvalidArgument)
	}

	fields := strings.Split(lines[2], "|")
	if len(fields) != 5 {
		return req, fmt.Errorf("%w: want 5 client fields, got %d", errs.ErrInvalidArgument, len(fields))
	}
	req.ClientVersion = fields[0]
	offset, err := strconv.ParseInt(fields[1], 10, 8)
	if err != nil {
		return req, fmt.Errorf("%w: utc offset %q", errs.ErrInvalidArgument, fields[1])
	}
	req.UTCOffset = int8(offset)
	req.DisplayCity = fields[2] == "1"
	req.ClientHashes = fields[3]
	req.OnlyFriendDMs = fields[4] == "1"
	return req, nil
}

func (s *Server) handlePoll(c echo.Context, token string) error {
	sess, ok := s.resolveToken(token)
	if !ok {
		// Verification failure severs the session: the client holding this
		// token must log in again (§6).
		s.countPoll("invalid_token")
		w := wire.NewWriter()
		packets.EncodeLoginReply(w, int32(packets.LoginInvalidCredentials))
		return c.Blob(http.StatusOK, contentTypeOctet, w.Bytes())
	}
	sess.Touch()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read poll body")
	}

	pkts, err := wire.ReadAll(body)
	if err != nil {
		// A short trailing fragment: process the complete frames and log the
		// remainder rather than discarding the whole poll.
		s.log.Warn("truncated poll body", "user_id", sess.UserID, "frames", len(pkts), "error", err)
	}

	batch, err := s.dispatcher.DispatchBatch(sess.UserID, pkts, s.services)
	if err != nil && errors.Is(err, errs.ErrFailedToProcessAll) {
		s.log.Warn("every packet in poll failed", "user_id", sess.UserID, "count", len(pkts))
	}

	out := wire.NewWriter()
	out.WriteRaw(batch.Outbound)
	for _, pkt := range sess.Queue.Drain() {
		out.WriteRaw(pkt)
	}
	s.drainChannels(sess, out)
	for _, m := range s.lc.DrainNotify(sess) {
		out.WriteRaw(m.Packet)
	}

	s.countPoll("ok")
	s.updateGauges()
	return c.Blob(http.StatusOK, contentTypeOctet, out.Bytes())
}

// resolveToken parses the session id off the bearer token, resolves the
// session, and verifies the signature against the session's user id. A
// signature mismatch on a live session logs it out.
func (s *Server) resolveToken(token string) (*session.Session, bool) {
	idPart, _, ok := strings.Cut(token, ".")
	if !ok {
		return nil, false
	}
	id, err := sortid.Parse(idPart)
	if err != nil {
		return nil, false
	}
	sess, ok := s.lc.Sessions.Get(session.BySessionID(id))
	if !ok {
		return nil, false
	}
	if _, err := s.lc.Signer.Verify(token, sess.UserID); err != nil {
		s.log.Warn("token signature mismatch, severing session", "user_id", sess.UserID)
		_ = s.lc.Logout(sess.UserID)
		return nil, false
	}
	return sess, true
}

// drainChannels splices every joined channel's unread bus messages into out.
func (s *Server) drainChannels(sess *session.Session, out *wire.Writer) {
	for _, name := range sess.JoinedChannels() {
		ch, ok := s.lc.Channels.Get(name)
		if !ok {
			continue
		}
		for _, m := range ch.Drain(sess.UserID) {
			out.WriteRaw(m.Packet)
		}
	}
}

func (s *Server) countLogin(result string) {
	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues(result).Inc()
	}
}

func (s *Server) countPoll(result string) {
	if s.metrics != nil {
		s.metrics.Polls.WithLabelValues(result).Inc()
	}
}

func (s *Server) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.OnlineSessions.Set(float64(s.lc.Sessions.Len()))
	if s.lc.Notify != nil {
		s.metrics.NotifyBusMessages.Set(float64(s.lc.Notify.Len()))
	}
}
