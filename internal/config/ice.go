package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICE servers are advertised to viewers at /webrtc/ice. The relay itself never
// gathers candidates.
const (
	envICEServersJSON = "SIGNALING_ICE_SERVERS_JSON"

	envStunURLs       = "SIGNALING_STUN_URLS"
	envTurnURLs       = "SIGNALING_TURN_URLS"
	envTurnUsername   = "SIGNALING_TURN_USERNAME"
	envTurnCredential = "SIGNALING_TURN_CREDENTIAL"

	envTurnRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envTurnRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envTurnRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"

	DefaultTURNRESTTTLSeconds     = 3600
	DefaultTURNRESTUsernamePrefix = "signaling"
)

// TURNRESTConfig enables per-request TURN credentials. When SharedSecret is
// set, TURN servers may be configured without a username and credential.
type TURNRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
}

func (c TURNRESTConfig) Enabled() bool {
	return c.SharedSecret != ""
}

// The JSON form wins over the convenience URL lists when both are set.
func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string, turnREST bool) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		servers, err := parseICEServersJSON(raw, turnREST)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}
	return parseICEServerURLs(stunURLs, turnURLs, turnUsername, turnCredential, turnREST)
}

// iceServerEntry mirrors the browser RTCIceServer dictionary, where urls may
// be a single string or a list.
type iceServerEntry struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type urlList []string

func (u *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*u = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("urls: expected string or list of strings: %w", err)
	}
	*u = many
	return nil
}

// ParseICEServersJSON parses a JSON array of RTCIceServer-shaped objects.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	return parseICEServersJSON(raw, false)
}

func parseICEServersJSON(raw string, turnREST bool) ([]webrtc.ICEServer, error) {
	var entries []iceServerEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		server := webrtc.ICEServer{
			URLs:     splitCommaSeparated(strings.Join(entry.URLs, ",")),
			Username: strings.TrimSpace(entry.Username),
		}
		if cred := strings.TrimSpace(entry.Credential); cred != "" {
			server.Credential = cred
		}
		if err := validateICEServer(server, turnREST); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// ParseICEServerURLs builds at most one STUN and one TURN entry from
// comma-separated URL lists. TURN URLs need both credentials.
func ParseICEServerURLs(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	return parseICEServerURLs(stunURLs, turnURLs, turnUsername, turnCredential, false)
}

func parseICEServerURLs(stunURLs, turnURLs, turnUsername, turnCredential string, turnREST bool) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer

	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		server := webrtc.ICEServer{URLs: urls}
		if err := validateICEServer(server, false); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		user := strings.TrimSpace(turnUsername)
		cred := strings.TrimSpace(turnCredential)
		server := webrtc.ICEServer{URLs: urls}
		switch {
		case user != "" && cred != "":
			server.Username, server.Credential = user, cred
		case turnREST && user == "" && cred == "":
		default:
			return nil, fmt.Errorf("%s and %s must both be set with %s", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		if err := validateICEServer(server, turnREST); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func splitCommaSeparated(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validateICEServer checks URL schemes. TURN entries need credentials unless
// turnREST will mint them, in which case both must be absent or both present.
func validateICEServer(server webrtc.ICEServer, turnREST bool) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCreds := false
	for _, url := range server.URLs {
		scheme, rest, ok := strings.Cut(url, ":")
		if !ok || rest == "" {
			return fmt.Errorf("malformed url %q", url)
		}
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			needsCreds = true
		default:
			return fmt.Errorf("unsupported url scheme %q", url)
		}
	}
	if !needsCreds {
		return nil
	}

	cred, _ := server.Credential.(string)
	if turnREST && server.Username == "" && strings.TrimSpace(cred) == "" {
		return nil
	}
	if server.Username == "" {
		return errors.New("turn urls require username")
	}
	if strings.TrimSpace(cred) == "" {
		return errors.New("turn urls require credential")
	}
	return nil
}
