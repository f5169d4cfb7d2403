package security

import (
	"crypto/subtle"

	"github.com/emunro22/root-fuel/configs"
)

// Client is an operator tool allowed to request tokens,
// e.g. Perms {"orders.read"}.
type Client struct {
	ID      string
	Secret  string
	Perms   []string
	Enabled bool
}

// Clients is the registry loaded from security.clients.
type Clients map[string]Client

func NewClients(cfg []configs.ClientConfig) Clients {
	out := make(Clients, len(cfg))
	for _, c := range cfg {
		if c.ID == "" {
			continue
		}
		out[c.ID] = Client{ID: c.ID, Secret: c.Secret, Perms: c.Perms, Enabled: !c.Disabled}
	}
	return out
}

// Authenticate returns the client only if it exists, is enabled and the
// secret matches.
func (cs Clients) Authenticate(id, secret string) (Client, bool) {
	cl, ok := cs[id]
	if !ok || !cl.Enabled || cl.Secret == "" {
		return Client{}, false
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(cl.Secret)) != 1 {
		return Client{}, false
	}
	return cl, true
}
