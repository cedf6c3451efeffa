package ais

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/compendiumnav/boatrelay/internal/httpkit"
	"github.com/compendiumnav/boatrelay/internal/state"
)

// vesselsResponse mirrors the subset of SignalK's REST `/vessels`
// snapshot this extractor needs: a map keyed by "urn:mrn:imo:mmsi:..."
// context strings, each holding an optional self-relative AIS and
// navigation subtree.
type vesselsResponse map[string]vesselEntry

type vesselEntry struct {
	MMSI string `json:"mmsi"`
	Name struct {
		Value string `json:"value"`
	} `json:"name"`
	Communication struct {
		CallsignVHF struct {
			Value string `json:"value"`
		} `json:"callsignVhf"`
	} `json:"communication"`
	Navigation struct {
		Position struct {
			Value struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"value"`
			Timestamp *time.Time `json:"timestamp"`
		} `json:"position"`
		SpeedOverGround struct {
			Value *float64 `json:"value"`
		} `json:"speedOverGround"`
		CourseOverGroundTrue struct {
			Value *float64 `json:"value"`
		} `json:"courseOverGroundTrue"`
		HeadingTrue struct {
			Value *float64 `json:"value"`
		} `json:"headingTrue"`
	} `json:"navigation"`
	Design struct {
		Length struct {
			Value struct {
				Overall float64 `json:"overall"`
			} `json:"value"`
		} `json:"length"`
		Beam struct {
			Value float64 `json:"value"`
		} `json:"beam"`
	} `json:"design"`
}

// fetchVessels retrieves baseURL's /vessels snapshot and converts it
// into a MMSI→AISTarget map, excluding selfMMSI, per §4.4 step 1.
// Entries with no reported position are skipped; the core navigation
// document is only useful for boats whose fix we actually have.
func fetchVessels(ctx context.Context, client *http.Client, baseURL, selfMMSI string) (map[string]state.AISTarget, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetchFailed, resp.StatusCode, body)
	}

	var raw vesselsResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrFetchFailed, err)
	}

	targets := make(map[string]state.AISTarget, len(raw))
	for _, entry := range raw {
		mmsi := entry.MMSI
		if mmsi == "" || mmsi == selfMMSI {
			continue
		}
		if entry.Navigation.Position.Value.Latitude == 0 && entry.Navigation.Position.Value.Longitude == 0 {
			continue
		}

		target := state.AISTarget{
			MMSI:     mmsi,
			Name:     entry.Name.Value,
			Callsign: entry.Communication.CallsignVHF.Value,
			Position: state.Position{
				Latitude:  entry.Navigation.Position.Value.Latitude,
				Longitude: entry.Navigation.Position.Value.Longitude,
				Timestamp: entry.Navigation.Position.Timestamp,
			},
			SOG:         entry.Navigation.SpeedOverGround.Value,
			COG:         entry.Navigation.CourseOverGroundTrue.Value,
			Heading:     entry.Navigation.HeadingTrue.Value,
			LastUpdated: time.Now(),
		}
		if entry.Design.Length.Value.Overall > 0 || entry.Design.Beam.Value > 0 {
			target.Dimensions = map[string]float64{
				"length": entry.Design.Length.Value.Overall,
				"beam":   entry.Design.Beam.Value,
			}
		}
		targets[mmsi] = target
	}
	return targets, nil
}
