package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/pion/webrtc/v4"

	"github.com/Jayvir101/Signaling-Server/internal/exchange"
	"github.com/Jayvir101/Signaling-Server/internal/longpoll"
	"github.com/Jayvir101/Signaling-Server/internal/mailbox"
	"github.com/Jayvir101/Signaling-Server/internal/metrics"
	"github.com/Jayvir101/Signaling-Server/internal/ratelimit"
)

const (
	defaultMaxBodyBytes      = 256 * 1024
	defaultMaxSessionIDBytes = 128
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Exchange *exchange.Exchange

	// PublisherIDs is the allow-list for the publish namespace. Empty means no
	// session may publish.
	PublisherIDs []string

	// Limiter throttles callers by address. Nil disables throttling.
	Limiter *ratelimit.ClientLimiter

	MaxBodyBytes      int64
	MaxSessionIDBytes int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server implements the relay's HTTP signaling surface.
//
// Viewer endpoints:
//   - POST /offer/{id}         : store an offer and hold the request for the answer
//   - POST /ice-candidate/{id} : queue a candidate for the media peer
//   - GET  /ice-candidate/{id} : next media peer candidate or null
//
// Media peer endpoints (all under /backend):
//   - GET  /backend/wait-offer/{id}    : long-poll for the session's offer
//   - POST /backend/answer/{id}        : hand the answer to the waiting viewer
//   - GET  /backend/wait-ice/{id}      : next viewer candidate or null
//   - POST /backend/ice-candidate/{id} : queue a candidate for the viewer
//
// The /publish and /backend/publish routes mirror these for allow-listed
// publisher sessions. Publisher offers are consumed by the first read.
//
// Only viewer and publisher routes are rate limited.
type Server struct {
	ex         *exchange.Exchange
	publishers []string
	limiter    *ratelimit.ClientLimiter

	maxBodyBytes      int64
	maxSessionIDBytes int

	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewServer(cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MaxSessionIDBytes <= 0 {
		cfg.MaxSessionIDBytes = defaultMaxSessionIDBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		ex:                cfg.Exchange,
		publishers:        slices.Clone(cfg.PublisherIDs),
		limiter:           cfg.Limiter,
		maxBodyBytes:      cfg.MaxBodyBytes,
		maxSessionIDBytes: cfg.MaxSessionIDBytes,
		metrics:           cfg.Metrics,
		log:               cfg.Logger,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	session, publish := mailbox.NamespaceSession, mailbox.NamespacePublish

	mux.HandleFunc("POST /offer/{id}", s.viewerRoute(session, s.handleSubmitOffer))
	mux.HandleFunc("POST /ice-candidate/{id}", s.viewerRoute(session, s.handleSubmitICE(mailbox.ToPeer)))
	mux.HandleFunc("GET /ice-candidate/{id}", s.viewerRoute(session, s.handleNextICE(mailbox.ToViewer)))
	mux.HandleFunc("GET /backend/wait-offer/{id}", s.backendRoute(session, s.handleWaitOffer))
	mux.HandleFunc("POST /backend/answer/{id}", s.backendRoute(session, s.handlePostAnswer))
	mux.HandleFunc("GET /backend/wait-ice/{id}", s.backendRoute(session, s.handleNextICE(mailbox.ToPeer)))
	mux.HandleFunc("POST /backend/ice-candidate/{id}", s.backendRoute(session, s.handleSubmitICE(mailbox.ToViewer)))

	mux.HandleFunc("POST /publish/offer/{id}", s.viewerRoute(publish, s.handleSubmitOffer))
	mux.HandleFunc("POST /publish/ice-candidate/{id}", s.viewerRoute(publish, s.handleSubmitICE(mailbox.ToPeer)))
	mux.HandleFunc("GET /publish/ice-candidate/{id}", s.viewerRoute(publish, s.handleNextICE(mailbox.ToViewer)))
	mux.HandleFunc("GET /backend/publish/wait-offer/{id}", s.backendRoute(publish, s.handleWaitOffer))
	mux.HandleFunc("POST /backend/publish/answer/{id}", s.backendRoute(publish, s.handlePostAnswer))
	mux.HandleFunc("GET /backend/publish/wait-ice/{id}", s.backendRoute(publish, s.handleNextICE(mailbox.ToPeer)))
	mux.HandleFunc("POST /backend/publish/ice-candidate/{id}", s.backendRoute(publish, s.handleSubmitICE(mailbox.ToViewer)))
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

type keyedHandler func(w http.ResponseWriter, r *http.Request, key mailbox.Key)

// viewerRoute is rate limited per client address.
func (s *Server) viewerRoute(ns mailbox.Namespace, next keyedHandler) http.HandlerFunc {
	return s.route(ns, true, next)
}

// backendRoute serves the media peer. One peer polls on behalf of every
// session from a single address, so it is not rate limited.
func (s *Server) backendRoute(ns mailbox.Namespace, next keyedHandler) http.HandlerFunc {
	return s.route(ns, false, next)
}

// route applies the checks shared by every signaling endpoint before any
// mailbox state is touched.
func (s *Server) route(ns mailbox.Namespace, limited bool, next keyedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limited && !s.limiter.Allow(ratelimit.ClientKey(r)) {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		id := r.PathValue("id")
		if id == "" || len(id) > s.maxSessionIDBytes {
			writeJSONError(w, http.StatusBadRequest, "bad_request", "invalid session id")
			return
		}
		if ns == mailbox.NamespacePublish && !slices.Contains(s.publishers, id) {
			s.metrics.Inc(metrics.DropReasonPublisherNotAllowed)
			s.log.Warn("publish rejected", "session", id, "remote_addr", r.RemoteAddr)
			writeJSONError(w, http.StatusBadRequest, "publisher_not_allowed", "session "+id+" may not publish")
			return
		}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
		}
		next(w, r, mailbox.Key{Namespace: ns, ID: id})
	}
}

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request, key mailbox.Key) {
	var wire SDP
	if err := decodeBody(r.Body, &wire); err != nil {
		s.writeBodyError(w, err)
		return
	}
	offer, err := wire.ToPion(webrtc.SDPTypeOffer)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	answer, err := s.ex.SubmitOffer(r.Context(), key, offer)
	if err != nil {
		s.writeExchangeError(w, r, key, err)
		return
	}
	writeJSON(w, http.StatusOK, sdpFromPion(answer))
}

func (s *Server) handleWaitOffer(w http.ResponseWriter, r *http.Request, key mailbox.Key) {
	offer, ok, err := s.ex.WaitOffer(r.Context(), key)
	if err != nil {
		s.writeExchangeError(w, r, key, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, sdpFromPion(offer))
}

func (s *Server) handlePostAnswer(w http.ResponseWriter, r *http.Request, key mailbox.Key) {
	var wire SDP
	if err := decodeBody(r.Body, &wire); err != nil {
		s.writeBodyError(w, err)
		return
	}
	answer, err := wire.ToPion(webrtc.SDPTypeAnswer)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	delivered, err := s.ex.PostAnswer(r.Context(), key, answer)
	if err != nil {
		s.writeExchangeError(w, r, key, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Status: "ok", Delivered: delivered})
}

func (s *Server) handleSubmitICE(dir mailbox.Direction) keyedHandler {
	return func(w http.ResponseWriter, r *http.Request, key mailbox.Key) {
		var wire Candidate
		if err := decodeBody(r.Body, &wire); err != nil {
			s.writeBodyError(w, err)
			return
		}
		c, err := wire.ToPion()
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}

		if err := s.ex.SubmitICE(r.Context(), key, dir, c); err != nil {
			s.writeExchangeError(w, r, key, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "queued"})
	}
}

func (s *Server) handleNextICE(dir mailbox.Direction) keyedHandler {
	return func(w http.ResponseWriter, r *http.Request, key mailbox.Key) {
		c, ok, err := s.ex.NextICE(r.Context(), key, dir)
		if err != nil {
			s.writeExchangeError(w, r, key, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, candidateFromPion(c))
	}
}

func (s *Server) writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds limit")
		return
	}
	writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
}

// writeExchangeError maps exchange outcomes to HTTP statuses.
func (s *Server) writeExchangeError(w http.ResponseWriter, r *http.Request, key mailbox.Key, err error) {
	switch {
	case errors.Is(err, exchange.ErrAnswerTimeout):
		writeJSONError(w, http.StatusGatewayTimeout, "answer_timeout", "no answer before deadline")
	case errors.Is(err, exchange.ErrSuperseded):
		writeJSONError(w, http.StatusConflict, "superseded", "a newer request for this session took over")
	case errors.Is(err, longpoll.ErrAlreadyWaiting):
		writeJSONError(w, http.StatusConflict, "already_waiting", "another request is already waiting on this session")
	case errors.Is(err, mailbox.ErrTooManySessions):
		writeJSONError(w, http.StatusServiceUnavailable, "too_many_sessions", "too many sessions")
	case errors.Is(err, mailbox.ErrQueueFull):
		writeJSONError(w, http.StatusTooManyRequests, "ice_queue_full", "ice candidate queue is full")
	case errors.Is(err, mailbox.ErrInvalidKey), errors.Is(err, mailbox.ErrInvalidDirection):
		writeJSONError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "answer_timeout", "request deadline exceeded")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		if cause := context.Cause(r.Context()); !errors.Is(cause, context.Canceled) {
			// The server is shutting down.
			writeJSONError(w, http.StatusServiceUnavailable, "unavailable", cause.Error())
			return
		}
		// The caller went away; nobody reads the response.
		s.log.Debug("signaling request cancelled", "session", key.String())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}
