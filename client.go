package main

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 60
)

// Client represents one WebSocket connection. It carries the ephemeral
// session binding: playerID is the identity this connection is bound to, and
// stays empty until a join or reconnect succeeds. The binding is discarded
// with the connection.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	// Session binding; empty = not yet joined this connection lifetime
	playerID string

	msgCount   int
	msgResetAt time.Time

	// Account state; 0 / "" = guest
	authPlayerID int64
	authUsername string
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("addr", c.remoteAddr).Msg("ws read")
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Warn().Str("addr", c.remoteAddr).Msg("rate limit exceeded, disconnecting")
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF marker distinguishes binary frames queued by SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal")
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug().Err(err).Str("addr", c.remoteAddr).Msg("unmarshal")
		return
	}

	switch env.T {
	case MsgJoin:
		c.handleJoin()
	case MsgReconnect:
		c.handleReconnect(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgPlayerUpdate:
		c.handlePlayerUpdate(env.D)
	case MsgCollectBerry:
		c.handleCollectBerry()
	case MsgMoveSnail:
		c.handleMoveSnail()
	case MsgAttackQueen:
		c.handleAttackQueen()
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	case MsgLeaderboard:
		c.handleLeaderboard(env.D)
	}
}

// handleJoin binds this connection to a fresh player. A connection that has
// already joined in its lifetime is silently ignored: retry-happy clients
// must not corrupt the roster.
func (c *Client) handleJoin() {
	if c.playerID != "" {
		if c.hub.game.HasPlayer(c.playerID) {
			log.Debug().Str("player", c.playerID).Msg("duplicate join ignored")
			return
		}
		// Bound player was swept (grace expiry or game reset); treat the
		// connection as unbound again.
		c.playerID = ""
	}

	p := c.hub.game.Join(c, c.authPlayerID)
	if p == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "game full"}})
		return
	}
	c.playerID = p.ID
	c.SendJSON(Envelope{T: MsgAssigned, Data: AssignedMsg{PlayerID: p.ID, Team: p.Team, Role: p.Role}})
}

// handleReconnect rebinds to a surviving identity, or falls back to a fresh
// join when the id is stale. The client only ever observes a playerAssigned
// either way.
func (c *Client) handleReconnect(data json.RawMessage) {
	if c.playerID != "" {
		if c.hub.game.HasPlayer(c.playerID) {
			return
		}
		c.playerID = ""
	}
	var msg ReconnectMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	var p *Player
	if msg.PlayerID != "" {
		p, _ = c.hub.game.Reconnect(msg.PlayerID, c)
	}
	if p == nil {
		p = c.hub.game.Join(c, c.authPlayerID)
		if p == nil {
			c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "game full"}})
			return
		}
	}
	c.playerID = p.ID
	c.SendJSON(Envelope{T: MsgAssigned, Data: AssignedMsg{PlayerID: p.ID, Team: p.Team, Role: p.Role}})
}

// handleLeave unbinds immediately so the connection may join again
func (c *Client) handleLeave() {
	if c.playerID == "" {
		return
	}
	c.hub.game.Leave(c.playerID)
	c.playerID = ""
}

func (c *Client) handlePlayerUpdate(data json.RawMessage) {
	if c.playerID == "" {
		return
	}
	var msg PlayerUpdateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.hub.game.ApplyMovement(c.playerID, msg.Position, msg.Rotation)
}

func (c *Client) handleCollectBerry() {
	if c.playerID == "" {
		return
	}
	c.hub.game.CollectBerry(c.playerID)
}

func (c *Client) handleMoveSnail() {
	if c.playerID == "" {
		return
	}
	c.hub.game.MoveSnail(c.playerID)
}

func (c *Client) handleAttackQueen() {
	if c.playerID == "" {
		return
	}
	c.hub.game.AttackQueen(c.playerID)
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil || c.hub.db == nil {
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.hub.SetOnline(id, c)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil || c.hub.db == nil {
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: err.Error()}})
		return
	}
	c.authPlayerID = id
	c.authUsername = msg.Username
	c.hub.SetOnline(id, c)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: token, Username: msg.Username, PlayerID: id}})
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	id, username, err := c.hub.auth.ValidateToken(msg.Token)
	if err != nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "invalid token"}})
		return
	}
	c.authPlayerID = id
	c.authUsername = username
	c.hub.SetOnline(id, c)
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{Token: msg.Token, Username: username, PlayerID: id}})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "not authenticated"}})
		return
	}
	stats, err := c.hub.db.GetStats(c.authPlayerID)
	if err != nil || stats == nil {
		c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: "profile not found"}})
		return
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username:   c.authUsername,
		Games:      stats.Games,
		Wins:       stats.Wins,
		Losses:     stats.Losses,
		Berries:    stats.Berries,
		SnailMoves: stats.SnailMoves,
		QueenKills: stats.QueenKills,
		Playtime:   stats.Playtime,
	}})
}

func (c *Client) handleLeaderboard(data json.RawMessage) {
	if c.hub.db == nil {
		return
	}
	var msg LeaderboardReqMsg
	if len(data) > 0 {
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
	}
	limit := msg.Limit
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	entries, err := c.hub.db.GetLeaderboard(msg.OrderBy, limit)
	if err != nil {
		log.Error().Err(err).Msg("leaderboard query")
		return
	}
	c.SendJSON(Envelope{T: MsgLeaderboardData, Data: entries})
}
