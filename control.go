package offlineagent

import (
	"encoding/json"
	"net/http"
)

// ControlPath is the reserved path prefix for the control channel.
const ControlPath = "/.offline-agent/control"

// Message kinds recognized by the control channel.
const (
	MsgForceActivate = "force-activate"
	MsgQueryStatus   = "query-status"
	MsgClearCache    = "clear-cache"
)

type controlMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type statusReply struct {
	Type    string `json:"type"`
	Cached  bool   `json:"cached"`
	Version string `json:"version"`
}

type clearReply struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

// ControlHandler returns the message endpoint for the hosting page.
// Replies are written to the same exchange; message kinds without a reply
// answer with an empty body. Unknown kinds are logged and ignored.
func (a *Agent) ControlHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg controlMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			a.log.Warn().Err(err).Msg("Malformed control message")
			http.Error(w, "malformed control message", http.StatusBadRequest)
			return
		}
		log := a.log.With().Str("type", msg.Type).Logger()

		switch msg.Type {
		case MsgForceActivate:
			a.lifecycle.SkipWaiting()
			// an instance that never finished installing must not evict
			// the generation currently in control
			if a.lifecycle.State() == StateActivating {
				if err := a.lifecycle.Activate(r.Context()); err != nil {
					log.Error().Err(err).Msg("Forced activation failed")
				}
			} else {
				log.Warn().Stringer("state", a.lifecycle.State()).Msg("Ignoring forced activation")
			}
			w.WriteHeader(http.StatusAccepted)

		case MsgQueryStatus:
			cached, err := a.namespaceExists()
			if err != nil {
				log.Error().Err(err).Msg("Could not query store")
			}
			a.reply(w, statusReply{
				Type:    "status",
				Cached:  cached,
				Version: a.version,
			})

		case MsgClearCache:
			// deleting an absent namespace still counts as success
			existed, err := a.store.Delete(a.lifecycle.Namespace())
			if err != nil {
				log.Error().Err(err).Msg("Could not clear namespace")
			}
			log.Info().Bool("existed", existed).Msg("Cleared cache")
			a.reply(w, clearReply{
				Type:    "clear-result",
				Success: err == nil,
			})

		default:
			log.Warn().Msg("Ignoring unknown control message")
			w.WriteHeader(http.StatusNoContent)
		}
	})
}

func (a *Agent) namespaceExists() (bool, error) {
	names, err := a.store.Namespaces()
	if err != nil {
		return false, err
	}
	current := a.lifecycle.Namespace()
	for _, name := range names {
		if name == current {
			return true, nil
		}
	}
	return false, nil
}

func (a *Agent) reply(w http.ResponseWriter, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error().Err(err).Msg("Could not write control reply")
	}
}
