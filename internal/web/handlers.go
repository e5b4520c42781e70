package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lowkeylabs/tracktracker/internal/db"
	"github.com/lowkeylabs/tracktracker/internal/ingest"
	"github.com/lowkeylabs/tracktracker/internal/trends"
)

const (
	defaultListSize = 10
	maxListSize     = 100

	defaultIngestLimit = 20
	maxIngestLimit     = 50
)

// Store is the read/admin surface the handlers need. Both db.DB and
// db.Memory satisfy it.
type Store interface {
	TrackCount(ctx context.Context) (int64, error)
	SnapshotCount(ctx context.Context) (int64, error)
	TopTracks(ctx context.Context, n int) ([]db.Track, error)
	AllTracks(ctx context.Context) ([]db.Track, error)
	RecentSnapshots(ctx context.Context, n int) ([]db.SnapshotWithTrack, error)
	DeleteTrack(ctx context.Context, id string) error
}

// Runner triggers ingestion runs.
type Runner interface {
	Run(ctx context.Context, pageLimit int) (*ingest.Result, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	store  Store
	runner Runner
	issuer *TokenIssuer
}

// NewHandlers creates a Handlers instance. runner may be nil when the
// server runs read-only.
func NewHandlers(store Store, runner Runner, issuer *TokenIssuer) *Handlers {
	return &Handlers{store: store, runner: runner, issuer: issuer}
}

type trackResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Artist      string    `json:"artist"`
	Album       *string   `json:"album,omitempty"`
	Popularity  *int      `json:"popularity,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

type snapshotResponse struct {
	ID         int64     `json:"id"`
	TrackID    string    `json:"track_id"`
	Popularity *int      `json:"popularity,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Track      struct {
		Name   string `json:"name"`
		Artist string `json:"artist"`
	} `json:"track"`
}

func toTrackResponse(t db.Track) trackResponse {
	return trackResponse{
		ID:          t.ID,
		Name:        t.Name,
		Artist:      t.Artist,
		Album:       t.Album,
		Popularity:  t.Popularity,
		FirstSeen:   t.FirstSeen,
		LastUpdated: t.LastUpdated,
	}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Track Tracker API is running",
	})
}

// IssueToken handles POST /auth/token. Credential validation is stubbed;
// every caller receives a token.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	token, expiresAt, err := h.issuer.Issue()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt.UTC().Format(time.RFC3339),
	})
}

// Stats handles GET /api/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.store.TrackCount(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count tracks")
		return
	}
	snapshots, err := h.store.SnapshotCount(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count snapshots")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{
		"tracks":    tracks,
		"snapshots": snapshots,
	})
}

// TopTracks handles GET /api/tracks/top?n=.
func (h *Handlers) TopTracks(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", defaultListSize, maxListSize)

	tracks, err := h.store.TopTracks(r.Context(), n)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query tracks")
		return
	}

	out := make([]trackResponse, len(tracks))
	for i, t := range tracks {
		out[i] = toTrackResponse(t)
	}
	respondJSON(w, http.StatusOK, map[string]any{"tracks": out})
}

// Tiers handles GET /api/tracks/tiers?k=.
func (h *Handlers) Tiers(w http.ResponseWriter, r *http.Request) {
	k := queryInt(r, "k", trends.DefaultTierCount, 10)

	tracks, err := h.store.AllTracks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query tracks")
		return
	}

	tiers, unscored := trends.Tiers(tracks, k)

	type tierOut struct {
		Label          string          `json:"label"`
		MeanPopularity float64         `json:"mean_popularity"`
		Tracks         []trackResponse `json:"tracks"`
	}
	out := make([]tierOut, len(tiers))
	for i, tier := range tiers {
		out[i] = tierOut{
			Label:          tier.Label,
			MeanPopularity: tier.MeanPopularity,
			Tracks:         make([]trackResponse, len(tier.Tracks)),
		}
		for j, t := range tier.Tracks {
			out[i].Tracks[j] = toTrackResponse(t)
		}
	}

	unplaced := make([]trackResponse, len(unscored))
	for i, t := range unscored {
		unplaced[i] = toTrackResponse(t)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"tiers":    out,
		"unplaced": unplaced,
	})
}

// RecentSnapshots handles GET /api/snapshots/recent?n=.
func (h *Handlers) RecentSnapshots(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", defaultListSize, maxListSize)

	snapshots, err := h.store.RecentSnapshots(r.Context(), n)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to query snapshots")
		return
	}

	out := make([]snapshotResponse, len(snapshots))
	for i, s := range snapshots {
		out[i] = snapshotResponse{
			ID:         s.ID,
			TrackID:    s.TrackID,
			Popularity: s.Popularity,
			CapturedAt: s.CapturedAt,
		}
		out[i].Track.Name = s.TrackName
		out[i].Track.Artist = s.TrackArtist
	}
	respondJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

// TriggerIngest handles POST /api/ingest?limit=.
func (h *Handlers) TriggerIngest(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	limit := queryInt(r, "limit", defaultIngestLimit, maxIngestLimit)

	result, err := h.runner.Run(r.Context(), limit)
	if err != nil {
		log.Printf("web: ingestion run failed: %v", err)
		respondError(w, http.StatusBadGateway, "ingestion run failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"tracks_processed":  result.TracksProcessed,
		"snapshots_created": result.SnapshotsCreated,
		"errors":            result.Errors,
	})
}

// DeleteTrack handles DELETE /api/tracks/{id}. The delete cascades to the
// track's snapshots.
func (h *Handlers) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.store.DeleteTrack(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "track not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete track")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt reads a positive integer query parameter with a default and cap.
func queryInt(r *http.Request, name string, fallback, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	if v > max {
		return max
	}
	return v
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: encoding response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
