package server

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strconv"

	apperrors "github.com/GriffinCanCode/queue-sentinel/internal/errors"
	"github.com/GriffinCanCode/queue-sentinel/internal/imaging"
	"github.com/GriffinCanCode/queue-sentinel/internal/trace"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code     string            `json:"code"`
	Error    string            `json:"error"`
	Metadata map[string]string `json:"metadata,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
}

// RegionResponse describes one candidate region.
type RegionResponse struct {
	Index      int    `json:"index"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	MatchFloor int    `json:"match_floor"`
	PreviewURL string `json:"preview_url"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperrors.AppError
	if !apperrors.As(err, &ae) {
		ae = apperrors.New(apperrors.Internal, err.Error())
	}
	resp := ErrorResponse{Code: string(ae.Code), Error: ae.Message, Metadata: ae.Metadata}
	if tc, ok := trace.FromContext(r.Context()); ok {
		resp.TraceID = tc.TraceID
	}
	trace.Logger(r.Context()).Debug("request failed", "path", r.URL.Path, "code", ae.Code, "error", err)
	writeJSON(w, ae.HTTPStatus(), resp)
}

func writePNG(w http.ResponseWriter, r *http.Request, img image.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, img); err != nil {
		trace.Logger(r.Context()).Warn("png encode failed", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewStatus(s.orch.Status()))
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	wins, err := s.orch.Windows(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]WindowInfo, len(wins))
	for i, win := range wins {
		out[i] = windowInfo(win)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	d, err := s.orch.Detection(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]RegionResponse, len(d.Regions))
	for i, reg := range d.Regions {
		out[i] = RegionResponse{
			Index:      reg.Index,
			X:          reg.Bounds.Min.X,
			Y:          reg.Bounds.Min.Y,
			Width:      reg.Bounds.Dx(),
			Height:     reg.Bounds.Dy(),
			MatchFloor: reg.MatchFloor(),
			PreviewURL: fmt.Sprintf("/api/regions/%d/preview.png", reg.Index),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	d, err := s.orch.Detection(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writePNG(w, r, imaging.Thumbnail(d.Overlay, CaptureMaxHeight))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	i, err := pathIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.orch.Detection(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if i < 0 || i >= len(d.Regions) {
		writeError(w, r, apperrors.Newf(apperrors.RegionOutOfRange, "region %d out of range", i))
		return
	}
	writePNG(w, r, imaging.Thumbnail(d.Regions[i].Preview, PreviewMaxHeight))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	i, err := pathIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.orch.SelectRegion(i); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewStatus(s.orch.Status()))
}

func (s *Server) handleWatch(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.orch.SetWatching(on); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, NewStatus(s.orch.Status()))
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Reset(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewStatus(s.orch.Status()))
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	img := s.orch.LatestCapture()
	if img == nil {
		writeError(w, r, apperrors.New(apperrors.NotFound, "no capture of the target window"))
		return
	}
	writePNG(w, r, imaging.Thumbnail(img, CaptureMaxHeight))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	evts := s.orch.RecentEvents()
	if evts == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, evts)
}

func pathIndex(r *http.Request) (int, error) {
	raw := r.PathValue("index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Newf(apperrors.InvalidArgument, "invalid region index %q", raw)
	}
	return i, nil
}
