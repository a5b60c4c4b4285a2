// Package turnrest mints coturn-compatible TURN REST credentials for the ICE
// servers advertised to viewers.
//
//	username   = <unix_expiry>:<username_prefix>:<credential_id>
//	credential = base64(hmac_sha1(shared_secret, username))
//
// See https://datatracker.ietf.org/doc/html/draft-uberti-behave-turn-rest.
package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

type GeneratorConfig struct {
	SharedSecret   string
	TTL            time.Duration
	UsernamePrefix string

	Now func() time.Time
	// IDSource names each minted credential. Defaults to a random UUID.
	IDSource func() (string, error)
}

type Generator struct {
	secret   []byte
	ttl      time.Duration
	prefix   string
	now      func() time.Time
	idSource func() (string, error)
}

type Credentials struct {
	Username   string
	Credential string
	Expires    time.Time
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.TTL < time.Second {
		return nil, errors.New("TTL must be at least 1s")
	}
	if cfg.UsernamePrefix == "" {
		return nil, errors.New("username prefix is required")
	}
	if strings.Contains(cfg.UsernamePrefix, ":") {
		return nil, errors.New("username prefix must not contain ':'")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IDSource == nil {
		cfg.IDSource = func() (string, error) { return uuid.NewString(), nil }
	}
	return &Generator{
		secret:   []byte(cfg.SharedSecret),
		ttl:      cfg.TTL.Truncate(time.Second),
		prefix:   cfg.UsernamePrefix,
		now:      cfg.Now,
		idSource: cfg.IDSource,
	}, nil
}

func (g *Generator) Generate(id string) (Credentials, error) {
	if id == "" {
		return Credentials{}, errors.New("credential id is required")
	}
	if strings.Contains(id, ":") {
		return Credentials{}, errors.New("credential id must not contain ':'")
	}
	expires := g.now().UTC().Truncate(time.Second).Add(g.ttl)
	username := fmt.Sprintf("%d:%s:%s", expires.Unix(), g.prefix, id)
	return Credentials{
		Username:   username,
		Credential: sign(g.secret, username),
		Expires:    expires,
	}, nil
}

func (g *Generator) GenerateRandom() (Credentials, error) {
	id, err := g.idSource()
	if err != nil {
		return Credentials{}, fmt.Errorf("credential id: %w", err)
	}
	return g.Generate(id)
}

// Apply returns a copy of servers where every TURN entry without a username
// carries one freshly minted credential pair. Other entries are untouched.
func (g *Generator) Apply(servers []webrtc.ICEServer) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, len(servers))
	copy(out, servers)

	var creds *Credentials
	for i := range out {
		if out[i].Username != "" || !HasTURNURL(out[i]) {
			continue
		}
		if creds == nil {
			c, err := g.GenerateRandom()
			if err != nil {
				return nil, err
			}
			creds = &c
		}
		out[i].Username = creds.Username
		out[i].Credential = creds.Credential
	}
	return out, nil
}

func HasTURNURL(server webrtc.ICEServer) bool {
	for _, u := range server.URLs {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
