package main

import "encoding/json"

// Client -> Server message types
const (
	MsgJoin         = "joinGame"
	MsgLeave        = "leaveGame"
	MsgPlayerUpdate = "playerUpdate"
	MsgCollectBerry = "collectBerry"
	MsgMoveSnail    = "moveSnail"
	MsgAttackQueen  = "attackQueen"
	MsgReconnect    = "reconnectPlayer"
	MsgRegister     = "register"
	MsgLogin        = "login"
	MsgAuth         = "auth"
	MsgProfile      = "profile"
	MsgLeaderboard  = "leaderboard"
)

// Server -> Client message types. The full game state is not enveloped: it
// travels as a binary msgpack frame (see Game.broadcastStateLocked).
const (
	MsgAssigned        = "playerAssigned"
	MsgPositionUpdate  = "playerPositionUpdate"
	MsgGameOver        = "gameOver"
	MsgError           = "error"
	MsgAuthOK          = "auth_ok"
	MsgProfileData     = "profile_data"
	MsgLeaderboardData = "leaderboard_data"
	MsgAchievement     = "achievement"
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages — json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// PlayerUpdateMsg carries a client-reported pose
type PlayerUpdateMsg struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
}

// ReconnectMsg asks to rebind the connection to a previous identity
type ReconnectMsg struct {
	PlayerID string `json:"playerId"`
}

// AssignedMsg acknowledges a join or reconnect to that session only
type AssignedMsg struct {
	PlayerID string `json:"playerId"`
	Team     Team   `json:"team"`
	Role     Role   `json:"role"`
}

// PositionUpdateMsg is the movement delta sent to every session but the mover
type PositionUpdateMsg struct {
	ID       string `json:"id"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
}

// GameOverMsg announces a win condition
type GameOverMsg struct {
	Winner Team   `json:"winner"`
	Reason string `json:"reason"`
}

// PlayerState is the wire form of one roster entry
type PlayerState struct {
	ID       string `json:"id" msgpack:"id"`
	Team     Team   `json:"team" msgpack:"team"`
	Role     Role   `json:"role" msgpack:"role"`
	Position Vec3   `json:"position" msgpack:"position"`
	Rotation Vec3   `json:"rotation" msgpack:"rotation"`
	Active   bool   `json:"isActive" msgpack:"isActive"`
}

// GameSnapshot is the full-state broadcast, msgpack-encoded on the wire
type GameSnapshot struct {
	Status         GameStatus             `json:"status" msgpack:"status"`
	Players        map[string]PlayerState `json:"players" msgpack:"players"`
	BlueScore      int                    `json:"blueScore" msgpack:"blueScore"`
	GoldScore      int                    `json:"goldScore" msgpack:"goldScore"`
	BlueQueenAlive bool                   `json:"blueQueenAlive" msgpack:"blueQueenAlive"`
	GoldQueenAlive bool                   `json:"goldQueenAlive" msgpack:"goldQueenAlive"`
	SnailPosition  int                    `json:"snailPosition" msgpack:"snailPosition"`
	BlueBerries    int                    `json:"blueBerries" msgpack:"blueBerries"`
	GoldBerries    int                    `json:"goldBerries" msgpack:"goldBerries"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates with credentials
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg authenticates with a previously issued token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"pid"`
}

// LeaderboardReqMsg asks for the top players by one stat column
type LeaderboardReqMsg struct {
	OrderBy string `json:"orderBy"`
	Limit   int    `json:"limit"`
}

// ErrorMsg sends an error to the client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// ProfileDataMsg returns account stats
type ProfileDataMsg struct {
	Username   string  `json:"username"`
	Games      int     `json:"games"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	Berries    int     `json:"berries"`
	SnailMoves int     `json:"snailMoves"`
	QueenKills int     `json:"queenKills"`
	Playtime   float64 `json:"playtime"`
}

// AchievementMsg notifies a player of a newly unlocked achievement
type AchievementMsg struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Desc string `json:"desc"`
}
