package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"sdfmarch/tracer/internal/driver"
)

// ControlDoc describes a viewer input binding and the command it produces.
type ControlDoc struct {
	ID          string         `json:"id"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Shortcut    string         `json:"shortcut,omitempty"`
	Command     driver.Command `json:"command"`
}

// controlDocs lists the bindings a viewer should map onto driver commands.
// step is the rotation speed change applied by one arrow key press.
func controlDocs(step float64) []ControlDoc {
	stepLabel := strconv.FormatFloat(step, 'g', -1, 64)
	return []ControlDoc{
		{
			ID:          "toggle",
			Label:       "Pause / Resume",
			Description: "Switch between the rotating sweep and aiming the ray at the pointer.",
			Shortcut:    "Space",
			Command:     driver.Command{Type: driver.CommandToggle},
		},
		{
			ID:          "aim",
			Label:       "Aim",
			Description: "While paused, march a single ray from the centre towards the pointer.",
			Shortcut:    "Pointer move",
			Command:     driver.Command{Type: driver.CommandMarchTowards},
		},
		{
			ID:          "speed-up",
			Label:       "Rotate Faster",
			Description: "Increase the sweep's rotation speed by " + stepLabel + " rad per tick.",
			Shortcut:    "Arrow Right",
			Command:     driver.Command{Type: driver.CommandSetRotationSpeed, Delta: step},
		},
		{
			ID:          "slow-down",
			Label:       "Rotate Slower",
			Description: "Decrease the sweep's rotation speed by " + stepLabel + " rad per tick.",
			Shortcut:    "Arrow Left",
			Command:     driver.Command{Type: driver.CommandSetRotationSpeed, Delta: -step},
		},
		{
			ID:          "reset",
			Label:       "New Scene",
			Description: "Replace every shape with a freshly generated scene of random size.",
			Shortcut:    "Keyboard R",
			Command:     driver.Command{Type: driver.CommandReset},
		},
	}
}

// registerControlDocEndpoints serves the input bindings as JSON sorted by label.
func registerControlDocEndpoints(r *mux.Router, step float64) {
	r.HandleFunc("/controls", func(w http.ResponseWriter, _ *http.Request) {
		docs := controlDocs(step)
		sort.SliceStable(docs, func(i, j int) bool {
			if docs[i].Label == docs[j].Label {
				return strings.Compare(docs[i].ID, docs[j].ID) < 0
			}
			return strings.Compare(docs[i].Label, docs[j].Label) < 0
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(docs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)
}
