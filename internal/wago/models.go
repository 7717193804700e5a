package wago

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Stability is the release channel of an addon build.
type Stability string

const (
	StabilityStable Stability = "stable"
	StabilityAlpha  Stability = "alpha"
	StabilityBeta   Stability = "beta"
)

// ParseStability converts a string into a Stability.
func ParseStability(s string) (Stability, error) {
	switch Stability(s) {
	case StabilityStable, StabilityAlpha, StabilityBeta:
		return Stability(s), nil
	default:
		return "", fmt.Errorf("invalid stability %q: must be one of stable, alpha, beta", s)
	}
}

// UnmarshalJSON rejects stability values the API does not accept.
func (s *Stability) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStability(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Flavor is a game variant line with its own versioning track.
type Flavor string

const (
	FlavorRetail  Flavor = "retail"
	FlavorCata    Flavor = "cata"
	FlavorWotlk   Flavor = "wotlk"
	FlavorBC      Flavor = "bc"
	FlavorClassic Flavor = "classic"
)

// Flavors returns every flavor in validation order.
func Flavors() []Flavor {
	return []Flavor{FlavorRetail, FlavorCata, FlavorWotlk, FlavorBC, FlavorClassic}
}

// ParseFlavor converts a string into a Flavor.
func ParseFlavor(s string) (Flavor, error) {
	for _, f := range Flavors() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid flavor %q", s)
}

// AddonMetadata describes a single addon release.
// At least one flavor should list patches for the upload to be meaningful;
// the client does not enforce this.
type AddonMetadata struct {
	Label     string    `json:"label"`
	Stability Stability `json:"stability"`
	Changelog string    `json:"changelog"` // markdown

	SupportedRetailPatches  []string `json:"supported_retail_patches"`
	SupportedCataPatches    []string `json:"supported_cata_patches"`
	SupportedWotlkPatches   []string `json:"supported_wotlk_patches"`
	SupportedBCPatches      []string `json:"supported_bc_patches"`
	SupportedClassicPatches []string `json:"supported_classic_patches"`
}

// Patches returns the supported patches declared for a flavor.
func (m *AddonMetadata) Patches(f Flavor) []string {
	switch f {
	case FlavorRetail:
		return m.SupportedRetailPatches
	case FlavorCata:
		return m.SupportedCataPatches
	case FlavorWotlk:
		return m.SupportedWotlkPatches
	case FlavorBC:
		return m.SupportedBCPatches
	case FlavorClassic:
		return m.SupportedClassicPatches
	default:
		return nil
	}
}

// SetPatches replaces the supported patches for a flavor.
func (m *AddonMetadata) SetPatches(f Flavor, patches []string) {
	switch f {
	case FlavorRetail:
		m.SupportedRetailPatches = patches
	case FlavorCata:
		m.SupportedCataPatches = patches
	case FlavorWotlk:
		m.SupportedWotlkPatches = patches
	case FlavorBC:
		m.SupportedBCPatches = patches
	case FlavorClassic:
		m.SupportedClassicPatches = patches
	}
}

// HasPatches reports whether any flavor lists at least one patch.
func (m *AddonMetadata) HasPatches() bool {
	for _, f := range Flavors() {
		if len(m.Patches(f)) > 0 {
			return true
		}
	}
	return false
}

// JSON returns the metadata as sent in the multipart "metadata" field.
func (m *AddonMetadata) JSON() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}

// GameVersions is a point-in-time snapshot of the patches the API accepts.
type GameVersions struct {
	Retail  []string `json:"retail"`
	Cata    []string `json:"cata"`
	Wotlk   []string `json:"wotlk"`
	BC      []string `json:"bc"`
	Classic []string `json:"classic"`
}

// gameDataResponse is the body of GET /data/game.
type gameDataResponse struct {
	Patches GameVersions `json:"patches"`
}

// Patches returns the valid patches for a flavor.
func (g *GameVersions) Patches(f Flavor) []string {
	switch f {
	case FlavorRetail:
		return g.Retail
	case FlavorCata:
		return g.Cata
	case FlavorWotlk:
		return g.Wotlk
	case FlavorBC:
		return g.BC
	case FlavorClassic:
		return g.Classic
	default:
		return nil
	}
}

// Contains reports whether patch is a valid version for the flavor.
func (g *GameVersions) Contains(f Flavor, patch string) bool {
	return slices.Contains(g.Patches(f), patch)
}

// Validate checks every declared patch of metadata against this snapshot.
// It stops at the first unknown patch and returns a *ValidationError.
func (g *GameVersions) Validate(metadata *AddonMetadata) error {
	if metadata == nil {
		return ErrNilMetadata
	}
	for _, f := range Flavors() {
		for _, patch := range metadata.Patches(f) {
			if !g.Contains(f, patch) {
				return &ValidationError{Flavor: f, Patch: patch}
			}
		}
	}
	return nil
}

// AddonCategory is a category entry from GET /data/categories.
type AddonCategory struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
}

// UploadResponse holds whatever JSON the API returns for an accepted upload.
type UploadResponse struct {
	StatusCode int    `json:"-"`
	ID         string `json:"id,omitempty"`
}

// UnmarshalJSON accepts the id as a JSON string or number.
func (r *UploadResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id := bytes.TrimSpace(raw.ID)
	switch {
	case len(id) == 0 || string(id) == "null":
		r.ID = ""
	case id[0] == '"':
		return json.Unmarshal(id, &r.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("upload id: %w", err)
		}
		r.ID = n.String()
	}
	return nil
}
