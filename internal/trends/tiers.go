// Package trends groups stored tracks into popularity tiers using k-means
// clustering, a first processing pass over the ingested data.
package trends

import (
	"log"
	"slices"
	"strings"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/lowkeylabs/tracktracker/internal/db"
)

// DefaultTierCount is the number of tiers when the caller doesn't choose.
const DefaultTierCount = 3

// Tier is one popularity band.
type Tier struct {
	Label          string
	MeanPopularity float64 // 0-100 scale
	Tracks         []db.Track
}

// trackObservation wraps a Track to implement clusters.Observation.
type trackObservation struct {
	track  *db.Track
	coords clusters.Coordinates
}

func (o trackObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o trackObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Tiers partitions tracks into k popularity bands, hottest first. Tracks
// with no popularity score can't be placed and come back separately. When
// fewer scored tracks exist than tiers requested, everything is returned
// unplaced rather than forcing degenerate clusters.
func Tiers(tracks []db.Track, k int) ([]Tier, []db.Track) {
	if k <= 0 {
		k = DefaultTierCount
	}

	var scored []*db.Track
	var unscored []db.Track
	for i := range tracks {
		t := &tracks[i]
		if t.Popularity != nil {
			scored = append(scored, t)
		} else {
			unscored = append(unscored, *t)
		}
	}

	if len(scored) < k {
		for _, t := range scored {
			unscored = append(unscored, *t)
		}
		return nil, unscored
	}

	var obs clusters.Observations
	for _, t := range scored {
		obs = append(obs, trackObservation{
			track:  t,
			coords: clusters.Coordinates{float64(*t.Popularity) / 100},
		})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, k)
	if err != nil {
		log.Printf("trends: k-means partition failed: %v", err)
		for _, t := range scored {
			unscored = append(unscored, *t)
		}
		return nil, unscored
	}

	var tiers []Tier
	for _, cluster := range result {
		var clusterTracks []db.Track
		for _, o := range cluster.Observations {
			if to, ok := o.(trackObservation); ok {
				clusterTracks = append(clusterTracks, *to.track)
			}
		}
		if len(clusterTracks) == 0 {
			continue
		}

		slices.SortFunc(clusterTracks, func(a, b db.Track) int {
			if *a.Popularity != *b.Popularity {
				return *b.Popularity - *a.Popularity
			}
			return strings.Compare(a.ID, b.ID)
		})

		mean := cluster.Center[0] * 100
		tiers = append(tiers, Tier{
			Label:          tierLabel(mean),
			MeanPopularity: mean,
			Tracks:         clusterTracks,
		})
	}

	// Hottest tier first.
	slices.SortFunc(tiers, func(a, b Tier) int {
		switch {
		case a.MeanPopularity > b.MeanPopularity:
			return -1
		case a.MeanPopularity < b.MeanPopularity:
			return 1
		default:
			return 0
		}
	})

	return tiers, unscored
}

// tierLabel names a tier from its mean popularity.
func tierLabel(mean float64) string {
	switch {
	case mean >= 75:
		return "Hot"
	case mean >= 50:
		return "Rising"
	case mean >= 25:
		return "Steady"
	default:
		return "Niche"
	}
}
