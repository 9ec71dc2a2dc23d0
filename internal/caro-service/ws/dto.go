package ws

// Comandos aceitos do cliente
const (
	CmdJoinRoom   = "join-room"
	CmdLeaveRoom  = "leave-room"
	CmdJoinLobby  = "join-lobby"
	CmdLeaveLobby = "leave-lobby"
	CmdReady      = "ready"
	CmdMove       = "move"
	CmdChat       = "chat"
	CmdTyping     = "typing"
	CmdPing       = "ping"
)

// ClientMsg é a mensagem enviada pelo cliente
// ex: {"type":"move","code":"K3Z9QA","x":3,"y":-1}
type ClientMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	X       *int   `json:"x,omitempty"`
	Y       *int   `json:"y,omitempty"`
	Message string `json:"message,omitempty"`
}
