package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docutag/animescraper/db"
	"github.com/docutag/animescraper/fetcher"
	"github.com/docutag/animescraper/models"
	"github.com/docutag/animescraper/repository"
	"github.com/docutag/animescraper/slug"
)

// maxListLimit caps client-supplied limits
const maxListLimit = 500

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := s.catalog.Get().Catalog().Counts()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"anime":    counts.Anime,
		"episodes": counts.Episodes,
		"time":     time.Now(),
	})
}

// HomeResponse is the landing page payload
type HomeResponse struct {
	Featured []*models.Anime   `json:"featured"`
	Latest   []*models.Episode `json:"latest"`
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	repo := s.catalog.Get()
	respondJSON(w, http.StatusOK, HomeResponse{
		Featured: repo.Featured(limitParam(r, "featured", repository.DefaultFeaturedLimit)),
		Latest:   repo.LatestUpdates(limitParam(r, "latest", repository.DefaultLatestLimit)),
	})
}

func (s *Server) handleOngoing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Get().Ongoing())
}

func (s *Server) handleAnimeList(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort")
	if sortBy != "" && sortBy != repository.SortTitle && sortBy != repository.SortStatus {
		respondError(w, http.StatusBadRequest, "sort must be title or status")
		return
	}
	respondJSON(w, http.StatusOK, s.catalog.Get().AnimeList(sortBy, r.URL.Query().Get("genre")))
}

// AnimeResponse is an anime with its episodes
type AnimeResponse struct {
	Anime    *models.Anime     `json:"anime"`
	Episodes []*models.Episode `json:"episodes"`
}

func (s *Server) handleAnime(w http.ResponseWriter, r *http.Request) {
	repo := s.catalog.Get()
	anime, err := repo.FindAnime(chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, http.StatusNotFound, "anime not found")
		return
	}
	respondJSON(w, http.StatusOK, AnimeResponse{
		Anime:    anime,
		Episodes: repo.EpisodesForAnime(anime.Slug),
	})
}

// EpisodeResponse is an episode with its owning anime, when known, and the
// stream chosen for the requested quality
type EpisodeResponse struct {
	Episode  *models.Episode      `json:"episode"`
	Anime    *models.Anime        `json:"anime,omitempty"`
	Selected *models.StreamSource `json:"selected,omitempty"`
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	repo := s.catalog.Get()
	episode, err := repo.FindEpisode(chi.URLParam(r, "slug"))
	if err != nil {
		respondError(w, http.StatusNotFound, "episode not found")
		return
	}

	resp := EpisodeResponse{
		Episode:  episode,
		Selected: selectStream(episode.Streams, r.URL.Query().Get("quality")),
	}
	// A missing owner is normal; the episode is still served.
	if anime, err := repo.FindAnime(episode.AnimeSlug); err == nil {
		resp.Anime = anime
	}
	respondJSON(w, http.StatusOK, resp)
}

// selectStream returns the first stream of the requested quality, else the first stream
func selectStream(streams []models.StreamSource, quality string) *models.StreamSource {
	if len(streams) == 0 {
		return nil
	}
	for i := range streams {
		if quality != "" && streams[i].Quality == quality {
			return &streams[i]
		}
	}
	return &streams[0]
}

func (s *Server) handleGenres(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Get().Genres())
}

// GenreResponse is a genre with its anime
type GenreResponse struct {
	Genre string          `json:"genre"`
	Title string          `json:"title"`
	Anime []*models.Anime `json:"anime"`
}

func (s *Server) handleGenre(w http.ResponseWriter, r *http.Request) {
	genre := chi.URLParam(r, "slug")
	anime, err := s.catalog.Get().GenreAnime(genre)
	if err != nil {
		respondError(w, http.StatusNotFound, "genre not found")
		return
	}
	respondJSON(w, http.StatusOK, GenreResponse{Genre: genre, Title: slug.Title(genre), Anime: anime})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Get().NextSchedule(limitParam(r, "limit", repository.DefaultScheduleLimit)))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	respondJSON(w, http.StatusOK, s.catalog.Get().Search(q.Get("q"), q.Get("genre")))
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.catalog.Get().Debug())
}

// ResolveRequest asks for the player URL behind a mirror link. With Video
// set the player is also followed to its direct video URL.
type ResolveRequest struct {
	DataContent string `json:"data_content"`
	Video       bool   `json:"video"`
}

// ResolveResponse carries the resolved player URL and, when asked for and
// found, the video it plays
type ResolveResponse struct {
	URL   string `json:"url"`
	Video string `json:"video,omitempty"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		respondError(w, http.StatusServiceUnavailable, "stream resolution is not configured")
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DataContent) == "" {
		respondError(w, http.StatusBadRequest, "data_content is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	src, err := s.resolver.Resolve(ctx, req.DataContent)
	if errors.Is(err, fetcher.ErrNotResolved) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn("stream resolution failed", "error", err)
		respondError(w, http.StatusBadGateway, "stream resolution failed")
		return
	}
	resp := ResolveResponse{URL: src}
	if req.Video {
		video, err := s.resolver.ExtractVideo(ctx, src)
		switch {
		case errors.Is(err, fetcher.ErrNotResolved):
			// Not every player is backed by a direct video; the player URL still plays.
			s.logger.Debug("no direct video behind player", "url", src, "error", err)
		case err != nil:
			s.logger.Warn("video extraction failed", "url", src, "error", err)
			respondError(w, http.StatusBadGateway, "video extraction failed")
			return
		default:
			resp.Video = video
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.rebuilder == nil {
		respondError(w, http.StatusServiceUnavailable, "rebuild is not configured")
		return
	}

	catalog, err := s.rebuilder.Rebuild(r.Context())
	if err != nil {
		s.logger.Error("rebuild failed", "error", err)
		respondError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	respondJSON(w, http.StatusOK, catalog.Counts())
}

// ExportRequest names an export
type ExportRequest struct {
	Name string `json:"name"`
}

// ExportResponse locates a written export
type ExportResponse struct {
	Key    string        `json:"key"`
	Path   string        `json:"path"`
	Counts models.Counts `json:"counts"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exports == nil {
		respondError(w, http.StatusServiceUnavailable, "exports are not configured")
		return
	}

	var req ExportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	repo := s.catalog.Get()
	data, err := json.MarshalIndent(repo.Debug(), "", "  ")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode catalog")
		return
	}

	name := slug.GenerateWithFallback(req.Name, "catalog")
	key, err := s.exports.SaveExport(r.Context(), data, name, "application/json")
	if err != nil {
		s.logger.Error("export failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to write export")
		return
	}

	respondJSON(w, http.StatusCreated, ExportResponse{
		Key:    key,
		Path:   s.exports.GetFullPath(key),
		Counts: repo.Catalog().Counts(),
	})
}

// SnapshotRequest labels a new snapshot
type SnapshotRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w) {
		return
	}

	var req SnapshotRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	snap, err := s.snapshots.SaveSnapshot(r.Context(), s.catalog.Get().Catalog(), req.Label)
	if err != nil {
		s.logger.Error("snapshot failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}
	snap.Catalog = nil
	respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w) {
		return
	}

	limit := limitParam(r, "limit", 20)
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	list, err := s.snapshots.ListSnapshots(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}
	total, err := s.snapshots.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count snapshots")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": list,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w) {
		return
	}
	snap, ok := s.findSnapshot(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w) {
		return
	}
	err := s.snapshots.DeleteSnapshot(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNoSnapshot) {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete snapshot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestoreSnapshot makes a stored snapshot the live catalog
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireSnapshots(w) {
		return
	}
	snap, ok := s.findSnapshot(w, r)
	if !ok {
		return
	}

	s.catalog.Swap(snap.Catalog)
	s.metrics.SetCatalogCounts(snap.Counts)
	s.logger.Info("snapshot restored", "id", snap.ID, "anime", snap.Counts.Anime)
	respondJSON(w, http.StatusOK, snap.Counts)
}

func (s *Server) findSnapshot(w http.ResponseWriter, r *http.Request) (*db.Snapshot, bool) {
	snap, err := s.snapshots.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, db.ErrNoSnapshot) {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load snapshot: %v", err))
		return nil, false
	}
	return snap, true
}

func (s *Server) requireSnapshots(w http.ResponseWriter) bool {
	if s.snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot database is not configured")
		return false
	}
	return true
}

// limitParam parses a non-negative limit query parameter, capped at maxListLimit
func limitParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return min(n, maxListLimit)
}
