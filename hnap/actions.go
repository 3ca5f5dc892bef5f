package hnap

// Actions understood by this client. The modem exposes many more.
const (
	ActionLogin                 = "Login"
	ActionHomeConnection        = "GetHomeConnection"
	ActionHomeAddress           = "GetHomeAddress"
	ActionStatusSoftware        = "GetMotoStatusSoftware"
	ActionStatusLog             = "GetMotoStatusLog"
	ActionLagStatus             = "GetMotoLagStatus"
	ActionStatusConnectionInfo  = "GetMotoStatusConnectionInfo"
	ActionDownstreamChannelInfo = "GetMotoStatusDownstreamChannelInfo"
	ActionStatusStartupSequence = "GetMotoStatusStartupSequence"
	ActionUpstreamChannelInfo   = "GetMotoStatusUpstreamChannelInfo"
	ActionMultiple              = "GetMultipleHNAPs"
)

var knownActions = map[string]bool{
	ActionLogin:                 true,
	ActionHomeConnection:        true,
	ActionHomeAddress:           true,
	ActionStatusSoftware:        true,
	ActionStatusLog:             true,
	ActionLagStatus:             true,
	ActionStatusConnectionInfo:  true,
	ActionDownstreamChannelInfo: true,
	ActionStatusStartupSequence: true,
	ActionUpstreamChannelInfo:   true,
	ActionMultiple:              true,
}

// StatusActions lists every read-only status action, in the order the web
// interface requests them.
var StatusActions = []string{
	ActionHomeConnection,
	ActionHomeAddress,
	ActionStatusSoftware,
	ActionStatusLog,
	ActionLagStatus,
	ActionStatusConnectionInfo,
	ActionDownstreamChannelInfo,
	ActionStatusStartupSequence,
	ActionUpstreamChannelInfo,
}

// Known reports whether action is on the allow-list.
func Known(action string) bool { return knownActions[action] }

const (
	loginModeRequest = "request"
	loginModeLogin   = "login"

	resultOK = "OK"
)

type LoginRequest struct {
	Action        string `json:"Action"`
	Captcha       string `json:"Captcha"`
	PrivateLogin  string `json:"PrivateLogin"`
	Username      string `json:"Username"`
	LoginPassword string `json:"LoginPassword"`
}

func newLoginRequest(mode, username, password string) LoginRequest {
	return LoginRequest{
		Action:        mode,
		Captcha:       "",
		PrivateLogin:  "LoginPassword",
		Username:      username,
		LoginPassword: password,
	}
}

type LoginResponse struct {
	LoginResult string `json:"LoginResult"`
	Challenge   string `json:"Challenge"`
	PublicKey   string `json:"PublicKey"`
	Cookie      string `json:"Cookie"`
}

type StatusLogResponse struct {
	MotoStatusLogList      string `json:"MotoStatusLogList"`
	GetMotoStatusLogResult string `json:"GetMotoStatusLogResult"`
}

type DownstreamChannelInfoResponse struct {
	MotoConnDownstreamChannel                string `json:"MotoConnDownstreamChannel"`
	GetMotoStatusDownstreamChannelInfoResult string `json:"GetMotoStatusDownstreamChannelInfoResult"`
}

type UpstreamChannelInfoResponse struct {
	MotoConnUpstreamChannel                string `json:"MotoConnUpstreamChannel"`
	GetMotoStatusUpstreamChannelInfoResult string `json:"GetMotoStatusUpstreamChannelInfoResult"`
}
