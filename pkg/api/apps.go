package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/cuemby/warren/pkg/validator"
	"github.com/gorilla/mux"
)

// handleApps lists the names of every registered application.
func (s *Server) handleApps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "", map[string]any{"apps": s.registry.Apps()})
}

// optionDTO is the JSON-safe projection of validator.Descriptor: the
// Transform func can't be marshaled, so it's dropped here.
type optionDTO struct {
	Name          string   `json:"name"`
	Kind          string   `json:"kind"`
	Mandatory     bool     `json:"mandatory"`
	ValueType     string   `json:"value_type,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Default       any      `json:"default,omitempty"`
	Category      string   `json:"category,omitempty"`
	Subcategory   string   `json:"subcategory,omitempty"`
	Advanced      bool     `json:"advanced,omitempty"`
	Description   string   `json:"description,omitempty"`
}

func toOptionDTO(d validator.Descriptor) optionDTO {
	return optionDTO{
		Name:          d.Name,
		Kind:          string(d.Kind),
		Mandatory:     d.Mandatory,
		ValueType:     string(d.ValueType),
		AllowedValues: d.AllowedValues,
		Min:           d.Min,
		Max:           d.Max,
		Default:       d.Default,
		Category:      d.Category,
		Subcategory:   d.Subcategory,
		Advanced:      d.Advanced,
		Description:   d.Description,
	}
}

// handleDescribeApp returns an application's validated option schema.
func (s *Server) handleDescribeApp(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	descriptor, ok := s.registry.Describe(name)
	if !ok {
		notFound(w, fmt.Sprintf("unknown application %q", name))
		return
	}

	names := make([]string, 0, len(descriptor.Options))
	for n := range descriptor.Options {
		names = append(names, n)
	}
	sort.Strings(names)

	options := make([]optionDTO, 0, len(names))
	for _, n := range names {
		options = append(options, toOptionDTO(descriptor.Options[n]))
	}

	writeJSON(w, http.StatusOK, "", map[string]any{
		"app":     descriptor.Name,
		"options": options,
	})
}
