package stores

import (
	"bytes"
	"encoding/json"
	"fmt"

	"grocery-planner/internal/shared"
)

// StoreCandidate is one store returned by a location query.
type StoreCandidate struct {
	LocationID  string `json:"locationId"`
	Name        string `json:"name"`
	AddressLine string `json:"addressLine"`
	City        string `json:"city"`
	State       string `json:"state"`
	ZipCode     string `json:"zipCode"`
}

// Label is a one-line description for pickers.
func (c StoreCandidate) Label() string {
	if c.AddressLine == "" {
		return c.Name
	}
	return fmt.Sprintf("%s, %s, %s %s %s", c.Name, c.AddressLine, c.City, c.State, c.ZipCode)
}

// wireCandidate accepts the flat shape as well as the retailer's nested
// address object and snake_case ids.
type wireCandidate struct {
	LocationID      string `json:"locationId"`
	LocationIDSnake string `json:"location_id"`
	Name            string `json:"name"`
	AddressLine     string `json:"addressLine"`
	AddressLine1    string `json:"addressLine1"`
	City            string `json:"city"`
	State           string `json:"state"`
	ZipCode         string `json:"zipCode"`
	Address         *struct {
		AddressLine1 string `json:"addressLine1"`
		City         string `json:"city"`
		State        string `json:"state"`
		ZipCode      string `json:"zipCode"`
	} `json:"address"`
}

func (w wireCandidate) candidate() StoreCandidate {
	c := StoreCandidate{
		LocationID:  firstNonEmpty(w.LocationID, w.LocationIDSnake),
		Name:        w.Name,
		AddressLine: firstNonEmpty(w.AddressLine, w.AddressLine1),
		City:        w.City,
		State:       w.State,
		ZipCode:     w.ZipCode,
	}
	if a := w.Address; a != nil {
		c.AddressLine = firstNonEmpty(c.AddressLine, a.AddressLine1)
		c.City = firstNonEmpty(c.City, a.City)
		c.State = firstNonEmpty(c.State, a.State)
		c.ZipCode = firstNonEmpty(c.ZipCode, a.ZipCode)
	}
	return c
}

// ParseCandidates decodes a /stores body, which is either a bare array or an
// object with a "stores" array.
func ParseCandidates(endpoint string, data []byte) ([]StoreCandidate, error) {
	data = bytes.TrimSpace(data)

	var wire []wireCandidate
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, shared.MalformedError(endpoint, "stores list is not valid JSON", err)
		}
	} else {
		var envelope struct {
			Stores *[]wireCandidate `json:"stores"`
			Error  string           `json:"error"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, shared.MalformedError(endpoint, "stores response is not valid JSON", err)
		}
		if envelope.Error != "" {
			return nil, shared.BackendError(endpoint, 0, envelope.Error)
		}
		if envelope.Stores == nil {
			return nil, shared.MalformedError(endpoint, "response has no stores", nil)
		}
		wire = *envelope.Stores
	}

	candidates := make([]StoreCandidate, 0, len(wire))
	seen := make(map[string]bool)
	for _, w := range wire {
		c := w.candidate()
		if c.LocationID == "" {
			return nil, shared.MalformedError(endpoint, fmt.Sprintf("store %q has no locationId", c.Name), nil)
		}
		if seen[c.LocationID] {
			continue
		}
		seen[c.LocationID] = true
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
