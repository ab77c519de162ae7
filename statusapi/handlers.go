package statusapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type deviceView struct {
	DeviceNumber int    `json:"device_number"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	MACAddress   string `json:"mac_address"`
	LastSeenUnix int64  `json:"last_seen_unix"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeError(w, http.StatusServiceUnavailable, "device finder not running")
		return
	}
	current := s.devices.CurrentDevices()
	out := make([]deviceView, 0, len(current))
	for _, a := range current {
		out = append(out, deviceView{
			DeviceNumber: a.DeviceNumber,
			Name:         a.Name,
			Address:      a.Address.String(),
			MACAddress:   a.MACAddress.String(),
			LastSeenUnix: a.LastSeen.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type trackView struct {
	Player   int     `json:"player"`
	HotCue   int     `json:"hot_cue"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	Tempo    float64 `json:"tempo"`
	Duration int     `json:"duration_seconds"`
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if s.tracks == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata finder not running")
		return
	}
	loaded := s.tracks.GetLoadedTracks()
	out := make([]trackView, 0, len(loaded))
	for ref, md := range loaded {
		out = append(out, trackView{
			Player:   ref.Player,
			HotCue:   ref.HotCue,
			Title:    md.Title,
			Artist:   md.Artist,
			Album:    md.Album,
			Tempo:    md.Tempo,
			Duration: md.Duration,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrackFor(w http.ResponseWriter, r *http.Request) {
	if s.tracks == nil {
		writeError(w, http.StatusServiceUnavailable, "metadata finder not running")
		return
	}
	player, err := strconv.Atoi(chi.URLParam(r, "player"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "player must be an integer")
		return
	}
	md := s.tracks.GetLatestMetadataFor(player)
	if md == nil {
		writeError(w, http.StatusNotFound, "no metadata loaded for that player")
		return
	}
	writeJSON(w, http.StatusOK, trackView{
		Player:   player,
		Title:    md.Title,
		Artist:   md.Artist,
		Album:    md.Album,
		Tempo:    md.Tempo,
		Duration: md.Duration,
	})
}

func (s *Server) handleWaveformStats(w http.ResponseWriter, r *http.Request) {
	if s.waveforms == nil {
		writeError(w, http.StatusServiceUnavailable, "waveform finder not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cached_previews": s.waveforms.LoadedPreviewCount(),
		"cached_details":  s.waveforms.LoadedDetailCount(),
		"find_details":    s.waveforms.IsFindingDetails(),
		"preferred_style": s.waveforms.PreferredStyle().String(),
	})
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	if s.connections == nil {
		writeError(w, http.StatusServiceUnavailable, "connection manager not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pooled_sessions": s.connections.SessionCount(),
	})
}
