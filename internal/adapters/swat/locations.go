package swat

import (
	_ "embed"

	"github.com/BurntSushi/toml"
)

//go:embed locations.toml
var locationsTOML []byte

// Location is one monitored forecast site.
type Location struct {
	ID   int     `toml:"id"`
	Name string  `toml:"name"`
	Lat  float64 `toml:"lat"`
	Lon  float64 `toml:"lon"`
}

type manifest struct {
	Locations []Location `toml:"locations"`
}

// LoadLocations parses the embedded location manifest.
func LoadLocations() ([]Location, error) {
	var m manifest
	if err := toml.Unmarshal(locationsTOML, &m); err != nil {
		return nil, err
	}
	return m.Locations, nil
}
