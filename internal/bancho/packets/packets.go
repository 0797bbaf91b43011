package packets

import "github.com/opsu/bancho/internal/wire"

// UserStats is the state fan-out to presence subscribers on action change.
type UserStats struct {
	UserID      int32
	Action      uint8
	StatusText  string
	BeatmapMD5  string
	Mods        uint32
	Mode        uint8
	BeatmapID   int32
	RankedScore int64
	Accuracy    float32
	Playcount   int32
	TotalScore  int64
	GlobalRank  int32
	PP          int16
}

// UserPresence is the identity half of a presence fan-out.
type UserPresence struct {
	UserID      int32
	Username    string
	UTCOffset   int8
	CountryCode uint8
	Privileges  uint8
	Longitude   float32
	Latitude    float32
	GlobalRank  int32
}

// ChannelInfo describes a joinable channel to the client.
type ChannelInfo struct {
	Name   string
	Topic  string
	Online int16
}

// SendMessage is a chat delivery, public or private.
type SendMessage struct {
	Sender   string
	SenderID int32
	Body     string
	Target   string
}

func EncodeLoginReply(w *wire.Writer, code int32) {
	p := wire.NewPayloadWriter().I32(code)
	w.WritePacket(KindLoginReply, p.Bytes())
}

func EncodeNotification(w *wire.Writer, text string) {
	p := wire.NewPayloadWriter().String(text)
	w.WritePacket(KindNotification, p.Bytes())
}

func EncodeChannelInfo(w *wire.Writer, c ChannelInfo) {
	p := wire.NewPayloadWriter().String(c.Name).String(c.Topic).I16(c.Online)
	w.WritePacket(KindChannelInfo, p.Bytes())
}

func EncodeChannelJoinAck(w *wire.Writer, name string) {
	p := wire.NewPayloadWriter().String(name)
	w.WritePacket(KindChannelJoinAck, p.Bytes())
}

func EncodeChannelInfoEnd(w *wire.Writer) {
	w.WritePacket(KindChannelInfoEnd, nil)
}

func EncodeBanchoPrivileges(w *wire.Writer, bits int32) {
	p := wire.NewPayloadWriter().I32(bits)
	w.WritePacket(KindBanchoPrivileges, p.Bytes())
}

func EncodeFriendsList(w *wire.Writer, ids []int32) {
	p := wire.NewPayloadWriter().I32List(ids)
	w.WritePacket(KindFriendsList, p.Bytes())
}

func EncodeProtocolVersion(w *wire.Writer, version int32) {
	p := wire.NewPayloadWriter().I32(version)
	w.WritePacket(KindProtocolVersion, p.Bytes())
}

func EncodeSilenceEnd(w *wire.Writer, seconds int32) {
	p := wire.NewPayloadWriter().I32(seconds)
	w.WritePacket(KindSilenceEnd, p.Bytes())
}

func EncodeMainMenuIcon(w *wire.Writer, imageURL, clickURL string) {
	p := wire.NewPayloadWriter().String(imageURL + "|" + clickURL)
	w.WritePacket(KindMainMenuIcon, p.Bytes())
}

func EncodeUserStats(w *wire.Writer, s UserStats) {
	p := wire.NewPayloadWriter().
		I32(s.UserID).U8(s.Action).String(s.StatusText).String(s.BeatmapMD5).
		U32(s.Mods).U8(s.Mode).I32(s.BeatmapID).I64(s.RankedScore).
		F32(s.Accuracy).I32(s.Playcount).I64(s.TotalScore).
		I32(s.GlobalRank).I16(s.PP)
	w.WritePacket(KindUserStats, p.Bytes())
}

func DecodeUserStats(payload []byte) (UserStats, error) {
	r := wire.NewPayloadReader(payload)
	var s UserStats
	var err error
	if s.UserID, err = r.I32(); err != nil {
		return s, err
	}
	if s.Action, err = r.U8(); err != nil {
		return s, err
	}
	if s.StatusText, err = r.String(); err != nil {
		return s, err
	}
	if s.BeatmapMD5, err = r.String(); err != nil {
		return s, err
	}
	if s.Mods, err = r.U32(); err != nil {
		return s, err
	}
	if s.Mode, err = r.U8(); err != nil {
		return s, err
	}
	if s.BeatmapID, err = r.I32(); err != nil {
		return s, err
	}
	if s.RankedScore, err = r.I64(); err != nil {
		return s, err
	}
	if s.Accuracy, err = r.F32(); err != nil {
		return s, err
	}
	if s.Playcount, err = r.I32(); err != nil {
		return s, err
	}
	if s.TotalScore, err = r.I64(); err != nil {
		return s, err
	}
	if s.GlobalRank, err = r.I32(); err != nil {
		return s, err
	}
	if s.PP, err = r.I16(); err != nil {
		return s, err
	}
	return s, nil
}

func EncodeUserPresence(w *wire.Writer, p UserPresence) {
	pw := wire.NewPayloadWriter().
		I32(p.UserID).String(p.Username).U8(uint8(p.UTCOffset + 24)).
		U8(p.CountryCode).U8(p.Privileges).F32(p.Longitude).F32(p.Latitude).
		I32(p.GlobalRank)
	w.WritePacket(KindUserPresence, pw.Bytes())
}

func EncodeSendMessage(w *wire.Writer, m SendMessage) {
	p := wire.NewPayloadWriter().String(m.Sender).I32(m.SenderID).String(m.Body).String(m.Target)
	w.WritePacket(KindSendMessage, p.Bytes())
}

func DecodeSendMessageBody(payload []byte) (target, body string, err error) {
	r := wire.NewPayloadReader(payload)
	if body, err = r.String(); err != nil {
		return "", "", err
	}
	if target, err = r.String(); err != nil {
		return "", "", err
	}
	return target, body, nil
}

// EncodeUserLogout encodes user-logout(i32 id, u8 0) exactly per §6.
func EncodeUserLogout(w *wire.Writer, userID int32) {
	p := wire.NewPayloadWriter().I32(userID).U8(0)
	w.WritePacket(KindUserLogout, p.Bytes())
}

func EncodeUserDMBlocked(w *wire.Writer, target string) {
	p := wire.NewPayloadWriter().String(target)
	w.WritePacket(KindUserDMBlocked, p.Bytes())
}

func DecodeChannelInfo(payload []byte) (ChannelInfo, error) {
	r := wire.NewPayloadReader(payload)
	var c ChannelInfo
	var err error
	if c.Name, err = r.String(); err != nil {
		return c, err
	}
	if c.Topic, err = r.String(); err != nil {
		return c, err
	}
	if c.Online, err = r.I16(); err != nil {
		return c, err
	}
	return c, nil
}

func DecodeFriendsList(payload []byte) ([]int32, error) {
	r := wire.NewPayloadReader(payload)
	return r.I32List()
}

func DecodeUserPresence(payload []byte) (UserPresence, error) {
	r := wire.NewPayloadReader(payload)
	var p UserPresence
	var err error
	if p.UserID, err = r.I32(); err != nil {
		return p, err
	}
	if p.Username, err = r.String(); err != nil {
		return p, err
	}
	var offset uint8
	if offset, err = r.U8(); err != nil {
		return p, err
	}
	p.UTCOffset = int8(offset) - 24
	if p.CountryCode, err = r.U8(); err != nil {
		return p, err
	}
	if p.Privileges, err = r.U8(); err != nil {
		return p, err
	}
	if p.Longitude, err = r.F32(); err != nil {
		return p, err
	}
	if p.Latitude, err = r.F32(); err != nil {
		return p, err
	}
	if p.GlobalRank, err = r.I32(); err != nil {
		return p, err
	}
	return p, nil
}

func DecodeSendMessage(payload []byte) (SendMessage, error) {
	r := wire.NewPayloadReader(payload)
	var m SendMessage
	var err error
	if m.Sender, err = r.String(); err != nil {
		return m, err
	}
	if m.SenderID, err = r.I32(); err != nil {
		return m, err
	}
	if m.Body, err = r.String(); err != nil {
		return m, err
	}
	if m.Target, err = r.String(); err != nil {
		return m, err
	}
	return m, nil
}
