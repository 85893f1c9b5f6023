package httpserver

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yndnr/wamesh-go/internal/infra/buildinfo"
)

// SessionCounter reports live sessions per state.
type SessionCounter interface {
	StateCounts() map[string]int
}

type healthResponse struct {
	Status   string         `json:"status"`
	Time     string         `json:"time"`
	Sessions int            `json:"sessions"`
	States   map[string]int `json:"states"`
	Build    buildinfo.Info `json:"build"`
}

func healthHandler(sessions SessionCounter, clock clockwork.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		states := map[string]int{}
		if sessions != nil {
			states = sessions.StateCounts()
		}
		total := 0
		for _, n := range states {
			total += n
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:   "ok",
			Time:     clock.Now().UTC().Format(time.RFC3339),
			Sessions: total,
			States:   states,
			Build:    buildinfo.Get(),
		})
	}
}
