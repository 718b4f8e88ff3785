package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/docchat/docchat/internal/models"
	"github.com/docchat/docchat/internal/types"
	"github.com/docchat/docchat/pkg/llm"
	"github.com/docchat/docchat/pkg/pipeline"
	"github.com/docchat/docchat/pkg/session"
)

const maxUploadBytes = 10 << 20

// Server is the HTTP surface over the pipeline: document upload, raw
// search, and the streaming/non-streaming chat endpoints.
type Server struct {
	engine    *llm.ChatEngine
	ingestor  types.Ingestor
	retriever *pipeline.Retriever
	extractor types.Extractor
	sessions  *session.Store
}

func New(engine *llm.ChatEngine, ingestor types.Ingestor, retriever *pipeline.Retriever, extractor types.Extractor) *Server {
	return &Server{
		engine:    engine,
		ingestor:  ingestor,
		retriever: retriever,
		extractor: extractor,
		sessions:  session.NewStore(),
	}
}

// Routes returns the server's handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/files/upload", s.handleUpload)
	mux.HandleFunc("/api/chat/stream", s.handleChatStream)
	mux.HandleFunc("/api/chat/simple", s.handleChatSimple)
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// ListenAndServe starts the server on the given port.
func (s *Server) ListenAndServe(port string) error {
	log.Printf("Starting server on port %s", port)
	return http.ListenAndServe(":"+port, s.Routes())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to parse form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read file: %v", err))
		return
	}

	text, err := s.extractor.Extract(data, header.Filename)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	result, err := s.ingestor.Ingest(r.Context(), text, header.Filename)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	question := r.URL.Query().Get("question")
	if sessionID == "" || question == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("session_id and question are required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	log.Printf("session %s: %s", sessionID, question)

	sess := s.sessions.Get(sessionID)
	sess.Lock()
	defer sess.Unlock()

	history := sess.Window(s.engine.HistoryWindow())
	sess.Append(models.NewChatMessage(models.RoleUser, question))

	answer, err := s.engine.Stream(r.Context(), history, question, func(fragment string) {
		if writeFrame(w, fragment) == nil {
			flusher.Flush()
		}
	})
	if err != nil {
		// Turn failure: record the error text as the assistant reply
		// and terminate the stream cleanly.
		errText := fmt.Sprintf("Error: %v", err)
		log.Printf("session %s: turn failed: %v", sessionID, err)
		sess.Append(models.NewChatMessage(models.RoleAssistant, errText))
		writeFrame(w, errText)
	} else {
		sess.Append(models.NewChatMessage(models.RoleAssistant, answer))
	}

	writeEndFrame(w)
	flusher.Flush()
}

func (s *Server) handleChatSimple(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	question := r.URL.Query().Get("question")
	if sessionID == "" || question == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("session_id and question are required"))
		return
	}

	sess := s.sessions.Get(sessionID)
	sess.Lock()
	defer sess.Unlock()

	history := sess.Window(s.engine.HistoryWindow())
	sess.Append(models.NewChatMessage(models.RoleUser, question))

	answer, err := s.engine.Answer(r.Context(), history, question)
	if err != nil {
		errText := fmt.Sprintf("Error: %v", err)
		sess.Append(models.NewChatMessage(models.RoleAssistant, errText))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	sess.Append(models.NewChatMessage(models.RoleAssistant, answer))
	writeJSON(w, http.StatusOK, map[string]string{"response": answer})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("q is required"))
		return
	}

	topK := 0
	if k := r.URL.Query().Get("k"); k != "" {
		parsed, err := strconv.Atoi(k)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("k must be a positive integer"))
			return
		}
		topK = parsed
	}

	if grouped, _ := strconv.ParseBool(r.URL.Query().Get("grouped")); grouped {
		clusters, err := s.retriever.RetrieveGrouped(r.Context(), query, topK)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": clusters})
		return
	}

	hits, err := s.retriever.Retrieve(r.Context(), query, topK)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

// statusFor maps pipeline errors to HTTP status codes. Bad input is the
// caller's fault; upstream provider failures are gateway errors.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrDecode), errors.Is(err, models.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmbedding), errors.Is(err, models.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	// Keep the response single-line.
	msg = strings.ReplaceAll(msg, "\n", " ")
	writeJSON(w, status, map[string]string{"error": msg})
}
